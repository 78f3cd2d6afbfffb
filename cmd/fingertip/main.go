package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/fingertip/internal/app"
	"github.com/ayusman/fingertip/internal/calibration"
	"github.com/ayusman/fingertip/internal/detector"
	"github.com/ayusman/fingertip/internal/gesture"
	"github.com/ayusman/fingertip/internal/rayangle"
	"github.com/ayusman/fingertip/internal/server"
	"github.com/ayusman/fingertip/internal/store"
)

// Config is read from FINGERTIP_* environment variables.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	DataDir   string `env:"DATA_DIR"`
	StaticDir string `env:"STATIC_DIR"`

	Strategy   string              `env:"STRATEGY" envDefault:"raycast"`
	Handedness detector.Handedness `env:"HANDEDNESS" envDefault:"Right"`
	Segment    rayangle.Segment    `env:"SEGMENT" envDefault:"distal"`
	Side       rayangle.Side       `env:"SIDE" envDefault:"palmar"`

	// PosesFile replays a JSON array of poses in a loop; null entries are
	// frames where the hand is lost.
	PosesFile string `env:"POSES_FILE"`

	TableName    string                    `env:"TABLE_NAME" envDefault:"calibrated"`
	MinFraction  float64                   `env:"MIN_FRACTION" envDefault:"0.1"`
	FallbackSide rayangle.Side             `env:"FALLBACK_SIDE" envDefault:"palmar"`
	Reducer      calibration.ReducerConfig `envPrefix:"REDUCER_"`
}

const shutdownTimeout = 5 * time.Second

func main() {
	fmt.Println("Fingertip - hand proximity touch detection")

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FINGERTIP_"}); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}

	st, err := openStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, st)
	case "calibrate":
		err = calibrate(ctx, cfg, st)
	case "seed":
		err = seed(st)
	default:
		err = fmt.Errorf("unknown command %q (want serve, calibrate or seed)", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// openStore opens the database under dir, defaulting to ~/.fingertip.
func openStore(dir string) (*store.Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".fingertip")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(filepath.Join(dir, "fingertip.db"))
}

// activeTable loads the table marked active, or the built-in default.
func activeTable(st *store.Store) *rayangle.Table {
	id, err := st.Settings().Get(store.SettingActiveTable)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("main: reading active table: %v", err)
		}
		return rayangle.DefaultTable()
	}

	rt, err := st.RayTables().Get(id)
	if err != nil {
		log.Printf("main: loading ray table %s: %v, using default", id, err)
		return rayangle.DefaultTable()
	}
	log.Printf("main: using ray table %q", rt.Name)
	return rt.Table
}

// panel is a demo surface that logs what it receives.
type panel struct {
	*detector.PlaneSurface
	gesture.Listeners
}

func newPanel(name string, center r3.Vec, priority int) *panel {
	p := &panel{PlaneSurface: detector.NewPlaneSurface(name, center, r3.Vec{Y: 1}, 0.2, 0.2)}
	p.Priority = priority
	p.OnTap(func(e gesture.TapEvent) {
		log.Printf("%s: tap at (%.3f, %.3f)", name, e.Position.X, e.Position.Y)
	})
	p.OnGesture(func(e gesture.GestureEvent) {
		if e.Phase != gesture.Updated {
			log.Printf("%s: gesture %s", name, e.Phase)
		}
	})
	return p
}

func serve(ctx context.Context, cfg Config, st *store.Store) error {
	icfg := app.DefaultConfig()
	icfg.Strategy = cfg.Strategy
	icfg.Detector.Handedness = cfg.Handedness
	icfg.Key = rayangle.Key{Segment: cfg.Segment, Side: cfg.Side}

	registry := detector.NewRegistry(
		newPanel("left", r3.Vec{X: -0.15}, 0),
		newPanel("right", r3.Vec{X: 0.15}, 0),
	)

	in, err := app.New(icfg, activeTable(st), registry)
	if err != nil {
		return err
	}

	source, err := poseSource(cfg.PosesFile)
	if err != nil {
		return err
	}

	hub := server.NewEventHub()
	hub.Attach(in.Listeners())

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(server.Config{
			StaticDir: cfg.StaticDir,
			Store:     st,
			Events:    hub,
			Activate:  in.SetTable,
			Recorder:  in,
		}),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return in.Run(ctx, source)
	})
	g.Go(func() error {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// poseSource replays poses from path, or reports an untracked hand forever
// when path is empty.
func poseSource(path string) (app.PoseSource, error) {
	if path == "" {
		log.Println("main: no pose file configured, hand will stay untracked")
		return app.NewMockPoseSource(nil, false), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read poses: %w", err)
	}
	var poses []*detector.Pose
	if err := json.Unmarshal(data, &poses); err != nil {
		return nil, fmt.Errorf("decode poses %s: %w", path, err)
	}
	log.Printf("main: replaying %d poses from %s", len(poses), path)
	return app.NewMockPoseSource(poses, true), nil
}

func calibrate(ctx context.Context, cfg Config, st *store.Store) error {
	reducer, err := cfg.Reducer.Build()
	if err != nil {
		return err
	}

	ds, err := st.Sessions().Dataset()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	est := calibration.Estimator{
		MinFraction:  cfg.MinFraction,
		Reducer:      reducer,
		FallbackSide: cfg.FallbackSide,
	}
	res, err := est.Estimate(ctx, ds)
	if err != nil {
		return err
	}

	rt, err := st.RayTables().Save(cfg.TableName, res.Table)
	if err != nil {
		return fmt.Errorf("save ray table: %w", err)
	}
	fmt.Printf("Saved ray table %q (%s) with %d ray sets using %s\n", rt.Name, rt.ID, res.Table.Len(), reducer.Name())
	for _, k := range res.Empty {
		fmt.Printf("  %s: no usable samples\n", k)
	}
	return nil
}

func seed(st *store.Store) error {
	rt, err := st.RayTables().Save("default", rayangle.DefaultTable())
	if err != nil {
		return err
	}

	if _, err := st.Settings().Get(store.SettingActiveTable); errors.Is(err, store.ErrNotFound) {
		if err := st.Settings().Set(store.SettingActiveTable, rt.ID); err != nil {
			return err
		}
	}
	fmt.Printf("Seeded ray table %q (%s)\n", rt.Name, rt.ID)
	return nil
}
