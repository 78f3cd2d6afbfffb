package app

import (
	"context"
	"log"
	"time"

	"github.com/ayusman/fingertip/internal/detector"
)

// PoseSource supplies the attach pose once per frame. ok is false when the
// hand is not currently tracked.
type PoseSource interface {
	Pose(ctx context.Context) (pose detector.Pose, ok bool, err error)
}

// Run drives the interactor from source until ctx is done.
//
// The loop starts at IdleFPS, switches to ActiveFPS as soon as a surface is
// hovered, and drops back to IdleFPS after IdleTimeout without hovering.
// Source errors are logged and the frame is skipped.
func (in *Interactor) Run(ctx context.Context, source PoseSource) error {
	idle := fpsInterval(in.config.IdleFPS, IdleFPS)
	active := fpsInterval(in.config.ActiveFPS, ActiveFPS)

	activeMode := false
	tracked := false
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		pose, ok, err := source.Pose(ctx)
		if err != nil {
			log.Printf("app: reading pose: %v", err)
			continue
		}

		now := time.Now()
		switch {
		case ok:
			in.Step(now, pose)
			tracked = true
		case tracked:
			in.Lost(now)
			tracked = false
		}

		switch isActive := in.Active(now); {
		case isActive && !activeMode:
			activeMode = true
			ticker.Reset(active)
			log.Println("app: switched to active mode")
		case !isActive && activeMode:
			activeMode = false
			ticker.Reset(idle)
			log.Println("app: switched to idle mode")
		}
	}
}

func fpsInterval(fps, fallback int) time.Duration {
	if fps <= 0 {
		fps = fallback
	}
	return time.Second / time.Duration(fps)
}
