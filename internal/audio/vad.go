package audio

import "time"

// VADConfig holds configuration for voice activity detection
type VADConfig struct {
	EnergyThreshold float64       // RMS energy above which a frame counts as speech
	NoSpeechTimeout time.Duration // silence after which NoSpeech is reported
}

// DefaultVADConfig returns a 500 RMS threshold and an 8s no-speech window
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: 500.0,
		NoSpeechTimeout: 8 * time.Second,
	}
}

// Activity is what one frame changed.
type Activity struct {
	Speaking      bool
	SpeechStarted bool
	// NoSpeech is set once per silent stretch longer than NoSpeechTimeout.
	NoSpeech bool
}

// VADDetector tracks speech and silence across PCM16 frames.
// It is not safe for concurrent use.
type VADDetector struct {
	config       VADConfig
	isSpeaking   bool
	silenceSince time.Time
	reported     bool
}

// NewVADDetector creates a detector whose silence window starts at now
func NewVADDetector(config VADConfig, now time.Time) *VADDetector {
	if config.EnergyThreshold <= 0 {
		config.EnergyThreshold = DefaultVADConfig().EnergyThreshold
	}
	return &VADDetector{config: config, silenceSince: now}
}

// Process classifies one frame of samples received at now
func (v *VADDetector) Process(samples []int16, now time.Time) Activity {
	if CalculateRMS(samples) > v.config.EnergyThreshold {
		started := !v.isSpeaking
		v.isSpeaking = true
		v.reported = false
		v.silenceSince = time.Time{}
		return Activity{Speaking: true, SpeechStarted: started}
	}

	if v.isSpeaking || v.silenceSince.IsZero() {
		v.isSpeaking = false
		v.silenceSince = now
	}

	var a Activity
	if v.config.NoSpeechTimeout > 0 && !v.reported && now.Sub(v.silenceSince) > v.config.NoSpeechTimeout {
		v.reported = true
		a.NoSpeech = true
	}
	return a
}

// Reset restarts the silence window at now
func (v *VADDetector) Reset(now time.Time) {
	v.isSpeaking = false
	v.reported = false
	v.silenceSince = now
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}
