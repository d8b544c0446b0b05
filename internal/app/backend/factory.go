// Package backend creates the media pipeline selected by configuration.
package backend

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
	"github.com/emacsmirror/gaplay/internal/infra/beepaudio"
	"github.com/emacsmirror/gaplay/internal/infra/config"
	"github.com/emacsmirror/gaplay/internal/infra/sim"
)

// Options carries the dependencies a backend may need.
type Options struct {
	Streamer beepaudio.Streamer // Opens http(s) streams for the beep backend
	Output   beepaudio.Output   // Defaults to the system speaker
}

// New creates the pipeline named by cfg.Backend from cfg.BackendSettings
// and applies the initial volume.
func New(cfg config.PlaybackConfig, opts Options) (pipeline.Pipeline, error) {
	zlog.Debug().Msgf("creating backend: type=%s settings=%+v", cfg.Backend, cfg.BackendSettings)

	var (
		p   pipeline.Pipeline
		err error
	)
	switch cfg.Backend {
	case config.BackendSim:
		p, err = newSim(cfg.BackendSettings)

	case config.BackendBeep:
		p, err = newBeep(cfg.BackendSettings, opts)

	default:
		return nil, errors.Newf("unsupported backend type: %s", cfg.Backend)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create backend %s", cfg.Backend)
	}

	p.SetVolume(cfg.InitialVolume)
	zlog.Info().Msgf("using backend: type=%s volume=%v", cfg.Backend, cfg.InitialVolume)
	return p, nil
}

func newSim(settings map[string]any) (*sim.Pipeline, error) {
	var cfg sim.Config
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	return sim.New(cfg), nil
}

func newBeep(settings map[string]any, opts Options) (*beepaudio.Pipeline, error) {
	var cfg beepaudio.Config
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		if !beepaudio.OutputAvailable {
			zlog.Warn().Msg("audio output is not available in this build, playback will fail")
		}
		out = beepaudio.NewSpeakerOutput()
	}
	return beepaudio.New(cfg, out, opts.Streamer), nil
}

// decodeSettings fills out from a free-form settings map, then applies
// defaults and validates. Unknown keys are errors.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create settings decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
