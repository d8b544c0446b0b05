// Package beepaudio provides a media pipeline that decodes and renders audio
// with gopxl/beep.
package beepaudio

import "time"

// Config represents beep pipeline settings.
type Config struct {
	SampleRate      int `mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs        int `mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
	ResampleQuality int `mapstructure:"resample_quality" default:"4" validate:"gte=1,lte=64"`
	OpenTimeoutSec  int `mapstructure:"open_timeout_sec" default:"15" validate:"gte=1"`
}

func (c Config) bufferDuration() time.Duration {
	return time.Duration(c.BufferMs) * time.Millisecond
}

func (c Config) openTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutSec) * time.Second
}
