// Package server wires one rank of the benchmark together: process
// group, checkpoint writer and coordinator on every rank, plus the
// HTTP control surface on rank 0. Construction, startup and shutdown
// follow one another explicitly so a failed step never leaves half a
// rank running.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ckptbench/app/handler"
	"ckptbench/app/router"
	"ckptbench/internal/checkpoint"
	"ckptbench/internal/comm"
	"ckptbench/internal/coordinator"
	"ckptbench/internal/jobs"
	"ckptbench/internal/model"
	"ckptbench/pkg/config"
	"ckptbench/pkg/interfaces"
	"ckptbench/pkg/logger"

	"github.com/gin-gonic/gin"
)

// progressInterval is how often the control rank logs its running
// checkpoint statistics.
const progressInterval = time.Minute

// Application manages the lifecycle of one benchmark rank.
type Application struct {
	config *config.Config

	// Rank infrastructure
	group       interfaces.ProcessGroup
	profile     model.Profile
	mechanism   interfaces.CheckpointMechanism
	coordinator *coordinator.Coordinator

	// Control-rank HTTP surface
	checkpointHandler *handler.CheckpointHandler
	httpServer        *http.Server
	ginEngine         *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Natural end of this rank's work (follower loop done, server
	// failed); the run error travels with it.
	doneCh   chan struct{}
	doneOnce sync.Once
	runErr   error

	// Cleanup functions, run in reverse registration order
	cleanupFuncs []func()
}

// NewApplication creates an application for an already validated
// configuration.
func NewApplication(cfg *config.Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		config:       cfg,
		ctx:          ctx,
		cancel:       cancel,
		doneCh:       make(chan struct{}),
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all components for this rank, in order. The
// final step blocks until every rank of the group has initialized.
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Logging", app.initLogger},
		{"Process Group", app.initGroup},
		{"Checkpoint Mechanism", app.initMechanism},
		{"Coordinator", app.initCoordinator},
		{"Background Tasks", app.initJobs},
		{"HTTP Server", app.initHTTPServer},
		{"Rank Synchronization", app.initSync},
	}

	for _, step := range steps {
		logger.Infof("Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.Infof("rank %d/%d initialization completed", app.config.Group.Rank, app.config.Group.Size)
	return nil
}

func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

func (app *Application) initGroup() error {
	group, err := comm.BuildGroup(app.ctx, app.config.Group)
	if err != nil {
		return err
	}
	app.group = group
	app.registerCleanup(func() {
		group.Close()
		logger.Infof("process group closed")
	})
	return nil
}

func (app *Application) initMechanism() error {
	profile, err := model.LookupProfile(app.config.Checkpoint.Model)
	if err != nil {
		return err
	}
	app.profile = profile

	writer, err := checkpoint.NewWriter(app.config.Checkpoint.Dir, profile,
		app.group.Rank(), app.group.Size())
	if err != nil {
		return err
	}
	app.mechanism = writer
	return nil
}

func (app *Application) initCoordinator() error {
	app.coordinator = coordinator.New(app.group, app.mechanism, app.profile)
	return nil
}

func (app *Application) initJobs() error {
	if !app.isControl() {
		return nil
	}
	app.jobsManager = jobs.NewManager(app.ctx)
	app.jobsManager.Register(jobs.NewProgressJob(app.coordinator, progressInterval))
	return nil
}

func (app *Application) initHTTPServer() error {
	if !app.isControl() {
		return nil
	}

	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	app.checkpointHandler = handler.NewCheckpointHandler(app.coordinator)
	router.NewRouter(app.checkpointHandler, app.config.Server.APIKey).Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}
	return nil
}

// initSync is the group-wide barrier that ends initialization: after
// it, every rank is constructed and no trigger can run early.
func (app *Application) initSync() error {
	return app.coordinator.Setup(app.ctx)
}

// Start launches this rank's work: the HTTP server on the control
// rank, the follower loop everywhere else.
func (app *Application) Start() error {
	if app.jobsManager != nil {
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	if app.isControl() {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			logger.Infof("HTTP server listening on %s", app.httpServer.Addr)
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.finish(fmt.Errorf("http server: %w", err))
			}
		}()
		return nil
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		err := app.coordinator.RunFollower(app.ctx)
		if err != nil {
			logger.Errorf("follower loop failed: %v", err)
		}
		app.finish(err)
	}()
	return nil
}

// Done is closed when this rank's work ends on its own: the follower
// loop returned, or the control rank's server failed. The control
// rank otherwise serves until Shutdown.
func (app *Application) Done() <-chan struct{} {
	return app.doneCh
}

// Err reports why the rank finished; call it after Done is closed.
func (app *Application) Err() error {
	return app.runErr
}

func (app *Application) finish(err error) {
	app.doneOnce.Do(func() {
		app.runErr = err
		close(app.doneCh)
	})
}

// Shutdown gracefully shuts this rank down. On the control rank the
// followers are released first, so a multi-process group never blocks
// on a vanished leader.
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.Infof("starting graceful shutdown (timeout: %v)", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if app.isControl() {
		if err := app.coordinator.Finalize(shutdownCtx); err != nil {
			logger.Errorf("finalize failed: %v", err)
		}
	}

	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP server shutdown error: %v", err)
		}
	}

	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warnf("shutdown timeout, some tasks may not have completed")
	}

	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.Infof("rank %d shut down", app.config.Group.Rank)
	return nil
}

func (app *Application) isControl() bool {
	return app.config.Group.Rank == 0
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
