package config

// DefaultAddr is the default listen address for the HTTP API.
// The request authenticator, not the bind address, is the trust boundary.
const DefaultAddr = "0.0.0.0:5000"

// DefaultTTSMode selects local command synthesis.
const DefaultTTSMode = "local"

// DefaultTTSCommand is the local synthesis command.
const DefaultTTSCommand = "say"

// DefaultSTTCommand is the transcription command.
const DefaultSTTCommand = "whisper-transcribe"

// DefaultCloudTTSKeyEnv names the environment variable holding the cloud
// synthesis API key.
const DefaultCloudTTSKeyEnv = "DEXHUB_TTS_API_KEY"

// DefaultPairCodeExpirySecs is how long a pairing code stays valid.
const DefaultPairCodeExpirySecs = 300

// Default token bucket parameters. Recognition is expensive, so its bucket
// is smaller and refills slower than the default class.
const (
	DefaultRecognitionCapacity  = 5
	DefaultRecognitionPerMinute = 20
	DefaultDefaultCapacity      = 10
	DefaultDefaultPerMinute     = 60
)
