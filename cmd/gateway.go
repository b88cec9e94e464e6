package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dayuer/charbot-go/internal/agent"
	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/channels"
	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/metrics"
	"github.com/dayuer/charbot-go/internal/redis"
	"github.com/dayuer/charbot-go/internal/reload"
	"github.com/dayuer/charbot-go/internal/session"
	"github.com/dayuer/charbot-go/internal/statusapi"
)

const shutdownGrace = 5 * time.Second

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Connect to the WhatsApp bridge and start answering",
	RunE:  runGateway,
}

var (
	gatewayPort int
	noWatch     bool
)

func init() {
	gatewayCmd.Flags().IntVarP(&gatewayPort, "port", "p", 0, "status API port (overrides gateway.port)")
	gatewayCmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable config and mappings hot reload")
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if gatewayPort != 0 {
		cfg.Gateway.Port = gatewayPort
	}
	wa := cfg.Channel.WhatsApp
	if wa == nil || wa.BridgeURL == "" {
		return fmt.Errorf("channel.whatsapp.bridgeUrl is not set in %s (run charbot onboard)", cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.URL != "" {
		redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		defer redis.Close()
	}

	m := metrics.New()
	store := mappings.NewStore(cfg.Storage.MappingsFile, logger)
	if err := store.Load(); err != nil {
		logger.Error("mappings not loaded, starting empty", zap.String("path", store.Path()), zap.Error(err))
	}

	msgBus := bus.NewMessageBus()
	chMgr := channels.NewManager(msgBus, logger)
	whatsapp := channels.NewWhatsAppChannel(wa.BridgeURL, wa.BridgeToken, wa.AllowFrom, msgBus, logger)
	chMgr.Register(whatsapp)

	deps := agent.Deps{
		Store:      store,
		Sender:     agent.BusSender{Bus: msgBus},
		Lister:     whatsapp,
		Metrics:    m,
		Logger:     logger,
		HTTPClient: &http.Client{},
	}
	engine, err := agent.Build(cfg, deps)
	if err != nil {
		return err
	}

	sessionPath := filepath.Join(config.DataDir(), "session.json")
	if snap, err := session.LoadSnapshot(sessionPath); err != nil {
		logger.Warn("session snapshot not restored", zap.String("path", sessionPath), zap.Error(err))
	} else {
		engine.Machine().Restore(snap)
	}
	dispatcher := agent.NewDispatcher(msgBus, engine, logger)

	instanceID := uuid.NewString()
	status := statusapi.NewServer(statusapi.Config{
		Host:       cfg.Gateway.Host,
		Port:       cfg.Gateway.Port,
		APIKey:     cfg.Gateway.APIKey,
		InstanceID: instanceID,
		Metrics:    m.Handler(),
		Logger:     logger,
		Status: func() statusapi.Status {
			eng := dispatcher.Engine()
			st := eng.Machine().State()
			s := statusapi.Status{
				Session: statusapi.SessionStatus{
					Status:         st.Status().String(),
					BoundGroupID:   st.BoundGroupID,
					BoundGroupName: st.BoundGroupName,
					ActivatedAt:    st.ActivatedAt,
				},
				Channels: chMgr.GetStatus(),
				Services: eng.Services(),
				Lanes:    dispatcher.Lanes().Stats(),
			}
			s.Mappings.Static, s.Mappings.Learned = store.Counts()
			return s
		},
	})

	logger.Info("charbot gateway starting",
		zap.String("instance", instanceID),
		zap.String("bridge", wa.BridgeURL),
		zap.Strings("channels", chMgr.EnabledChannels()),
		zap.Bool("resolveNames", cfg.Pipeline.ResolveNames),
		zap.Int("port", cfg.Gateway.Port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return chMgr.StartAll(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return status.Start(gctx) })

	if !noWatch {
		onChange := func(changed []string) {
			applyChanges(changed, cfgPath, store, dispatcher, deps)
		}
		w, err := reload.New([]string{cfgPath, store.Path()}, reload.DefaultDebounce, onChange, logger)
		if err != nil {
			logger.Warn("hot reload disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				w.Run(gctx)
				return nil
			})
		}
	}

	err = g.Wait()
	logger.Info("shutting down")
	chMgr.StopAll()
	waitWithTimeout(dispatcher.Wait, shutdownGrace)
	store.Wait()

	if serr := session.SaveSnapshot(sessionPath, dispatcher.Engine().Machine().Snapshot()); serr != nil {
		logger.Error("session snapshot not saved", zap.String("path", sessionPath), zap.Error(serr))
	}
	return err
}

// applyChanges reacts to settled file changes: a new mappings file is
// reloaded into the shared store, a new config rebuilds the engine and swaps
// it in with the session carried over.
func applyChanges(changed []string, cfgPath string, store *mappings.Store, d *agent.Dispatcher, deps agent.Deps) {
	cfgAbs, _ := filepath.Abs(cfgPath)
	storeAbs, _ := filepath.Abs(store.Path())
	for _, p := range changed {
		switch p {
		case storeAbs:
			reloaded, err := store.Reload()
			if err != nil {
				logger.Error("mappings reload failed, keeping current", zap.Error(err))
				continue
			}
			if reloaded {
				static, learned := store.Counts()
				logger.Info("mappings reloaded", zap.Int("static", static), zap.Int("learned", learned))
			}
		case cfgAbs:
			next, _, err := loadConfig()
			if err != nil {
				logger.Error("config reload failed, keeping current", zap.Error(err))
				continue
			}
			if next.Storage.MappingsFile != store.Path() {
				logger.Warn("storage.mappingsFile changes need a restart", zap.String("current", store.Path()))
			}
			engine, err := agent.Build(next, deps)
			if err != nil {
				logger.Error("config rejected, keeping current", zap.Error(err))
				continue
			}
			d.Swap(engine)
			logger.Info("config reloaded")
		}
	}
}

func waitWithTimeout(wait func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("gave up waiting for in-flight replies", zap.Duration("after", timeout))
	}
}
