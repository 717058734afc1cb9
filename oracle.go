package keyoracle

import (
	"fmt"
	"runtime"

	"github.com/keyoracle/keyoracle/build"
	"github.com/keyoracle/keyoracle/dispatcher"
	"github.com/keyoracle/keyoracle/hostrpc"
	"github.com/keyoracle/keyoracle/keychain"
	"github.com/keyoracle/keyoracle/monitoring"
	"github.com/keyoracle/keyoracle/prompt"
	"github.com/keyoracle/keyoracle/session"
	"github.com/keyoracle/keyoracle/signal"
	"github.com/keyoracle/keyoracle/signer"
	"github.com/keyoracle/keyoracle/wallet"
	"github.com/keyoracle/keyoracle/walletunlocker"
)

// Oracle bundles the components serving host requests.
type Oracle struct {
	Session    *session.Session
	Dispatcher *dispatcher.Dispatcher
	Host       *hostrpc.Server

	// Metrics is nil when the exporter is disabled.
	Metrics *monitoring.Metrics
}

// NewOracle wires the components for cfg. Prompts are answered by prompter.
func NewOracle(cfg *Config, prompter prompt.Prompter) (*Oracle, error) {
	stretcher, err := keychain.NewStretcher(cfg.StretchIterations)
	if err != nil {
		return nil, err
	}

	sess := session.New()
	keyRing := keychain.NewSessionKeyRing(
		sess, cfg.ActiveNetParams, cfg.TokenLength, runtime.NumCPU(),
	)

	unlocker := walletunlocker.New(&walletunlocker.Config{
		Session:     sess,
		Stretcher:   stretcher,
		Prompter:    prompter,
		TokenLength: cfg.TokenLength,
		Owner:       cfg.Owner,
	})

	authorizer := signer.New(&signer.Config{
		KeyRing:   keyRing,
		Signer:    &wallet.SigHashSigner{},
		Prompter:  prompter,
		NetParams: cfg.ActiveNetParams,
		Owner:     cfg.Owner,
	})

	dispatchCfg := &dispatcher.Config{
		Unlocker:   unlocker,
		Authorizer: authorizer,
		KeyGen:     keyRing,
		Session:    sess,
	}

	oracle := &Oracle{Session: sess}

	if cfg.Prometheus != nil && cfg.Prometheus.Enable {
		oracle.Metrics = monitoring.New(&monitoring.Config{
			Listen:   cfg.Prometheus.Listen,
			Version:  build.Version(),
			Commit:   build.Commit,
			Unlocked: sess.IsUnlocked,
		})
		dispatchCfg.Observer = oracle.Metrics
	}

	oracle.Dispatcher = dispatcher.New(dispatchCfg)
	oracle.Host = hostrpc.New(&hostrpc.Config{
		Listen:         cfg.Host.Listen,
		AllowedOrigins: cfg.Host.AllowedOrigins,
		Dispatcher:     oracle.Dispatcher,
		Status: func() string {
			return sess.State().String()
		},
	})

	return oracle, nil
}

// Start launches the dispatcher, the exporter and the host endpoint.
func (o *Oracle) Start() error {
	if err := o.Dispatcher.Start(); err != nil {
		return err
	}

	if o.Metrics != nil {
		if err := o.Metrics.Start(); err != nil {
			return fmt.Errorf("unable to start prometheus "+
				"exporter: %w", err)
		}
	}

	if err := o.Host.Start(); err != nil {
		return fmt.Errorf("unable to start host endpoint: %w", err)
	}

	return nil
}

// Stop shuts every component down and wipes the session secret.
func (o *Oracle) Stop() {
	if err := o.Host.Stop(); err != nil {
		orclLog.Errorf("Unable to stop host endpoint: %v", err)
	}
	_ = o.Dispatcher.Stop()

	if o.Metrics != nil {
		if err := o.Metrics.Stop(); err != nil {
			orclLog.Errorf("Unable to stop prometheus exporter: %v",
				err)
		}
	}

	o.Session.Lock()
}

// Main is the true entry point of keyoracled. It serves host requests until a
// shutdown is requested through the interceptor.
func Main(cfg *Config, interceptor signal.Interceptor) error {
	defer func() {
		orclLog.Info("Shutdown complete")
		if err := logRotator.Close(); err != nil {
			orclLog.Errorf("Could not close log rotator: %v", err)
		}
	}()

	orclLog.Infof("Version: %s commit=%s, build=%s, logging=%s, "+
		"debuglevel=%s", build.Version(), build.Commit,
		build.Deployment, build.LoggingType, cfg.DebugLevel)
	orclLog.Infof("Active network: %v", cfg.ActiveNetParams.Name)

	oracle, err := NewOracle(cfg, prompt.NewTerminal())
	if err != nil {
		return err
	}

	if err := oracle.Start(); err != nil {
		oracle.Stop()
		return err
	}
	defer oracle.Stop()

	<-interceptor.ShutdownChannel()

	return nil
}
