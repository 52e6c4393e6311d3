// Command screenerd runs the screener HTTP surface and the Alert Scheduler
// side by side in one process, the way the teacher's cmd/pvapi/main.go
// starts its gocron scheduler and HTTP server from the same entrypoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/config"
	"screenforge/internal/datastore"
	"screenforge/internal/evaluator"
	"screenforge/internal/httpapi"
	"screenforge/internal/notify"
	"screenforge/internal/scheduler"
	"screenforge/internal/translator"
	"screenforge/internal/validator"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	v := config.Load()
	v.SetEnvPrefix("screener")
	v.AutomaticEnv()

	cat, err := catalog.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("screenerd: failed to load field catalog")
	}

	ds, err := datastore.New(datastore.Config{
		Type:             datastore.Type(v.GetString(config.KeyDataStoreType)),
		ConnectionString: v.GetString(config.KeyDataStoreConnString),
		MockDataPath:     v.GetString(config.KeyDataStoreMockPath),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("screenerd: failed to initialize data store")
	}
	defer ds.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ds.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("screenerd: failed to initialize schema")
	}

	compilerCfg := config.CompilerFrom(v)
	val := validator.New(cat,
		validator.WithStrictMode(v.GetBool(config.KeyValidatorStrictMode)),
		validator.WithMaxNestingDepth(compilerCfg.MaxNestingDepth),
	)
	comp := compiler.New(cat, compiler.WithDefaultLimit(compilerCfg.DefaultLimit))

	var trans *translator.Translator
	if apiKey := os.Getenv("GOOGLE_GENAI_API_KEY"); apiKey != "" {
		assist, err := translator.NewGenAIAssist(ctx, apiKey, "")
		if err != nil {
			log.Warn().Err(err).Msg("screenerd: genai assist unavailable, continuing with heuristic translator only")
			trans = translator.New(cat)
		} else {
			defer assist.Close()
			trans = translator.New(cat, translator.WithLLMAssist(assist))
		}
	} else {
		trans = translator.New(cat)
	}

	eval := evaluator.New(cat, val, comp, ds)
	sink := notify.NewLogSink()

	schedCfg := config.SchedulerFrom(v)
	sched := scheduler.New(scheduler.Config{
		CadenceSeconds:    int(schedCfg.Cadence.Seconds()),
		RateLimitWindow:   schedCfg.RateLimitWindow,
		MaxParallelGroups: schedCfg.MaxParallelGroup,
		FetchTimeout:      config.FetchTimeout(v),
	}, time.UTC, ds, eval, sink)

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("screenerd: failed to start alert scheduler")
	}

	srv := httpapi.New(cat, trans, val, comp, ds)
	httpServer := &http.Server{
		Addr:    ":" + v.GetString(config.KeyHTTPPort),
		Handler: srv.Router(),
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("screenerd: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("screenerd: http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("screenerd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("screenerd: http server shutdown error")
	}
	sched.Stop()
}
