package logger_test

import (
	"fmt"
	"os"

	"github.com/ethan/rtspcam-client/pkg/logger"
)

// Example showing basic logger usage
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("client connected", "url", "rtsp://camera/stream")
	log.Warn("keepalive deferred", "reason", "401 on GET_PARAMETER")
	log.Error("session closed", "error", "connection reset")
}

// Example showing debug category usage
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.DebugRTP)
	cfg.EnableCategory(logger.DebugRTSP)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// RTP debugging (only logged if DebugRTP enabled)
	log.DebugRTPPacket(12345, 90000, 96, 1200)

	// RTSP debugging (only logged if DebugRTSP enabled)
	log.DebugRTSP("sent request", "method", "DESCRIBE", "cseq", 2)

	// Generic category logging
	log.DebugRTP("packet received", "seq", 12345)
}

// Example showing command-line flags integration
func ExampleFlags() {
	// In main.go:
	// import (
	//     "flag"
	//     "github.com/ethan/rtspcam-client/pkg/logger"
	// )
	//
	// fs := flag.NewFlagSet("rtspdump", flag.ExitOnError)
	// logFlags := logger.RegisterFlags(fs)
	// fs.Parse(os.Args[1:])
	//
	// logConfig, _ := logFlags.ToConfig()
	// log, _ := logger.New(logConfig)
	// defer log.Close()

	fmt.Println("See cmd/rtspdump/main.go for complete example")
}

// Example showing JSON format output
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "app.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("app.json") // Cleanup

	log.Info("stream started",
		"codec", "H264",
		"payload_type", 96,
		"clock_rate", 90000)

	// Output will be in JSON format:
	// {"time":"...","level":"INFO","msg":"stream started","codec":"H264","payload_type":96,"clock_rate":90000}
}

// Example showing conditional debug logging
func ExampleLogger_conditional() {
	cfg := logger.NewConfig()
	cfg.EnableCategory(logger.DebugAuth)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// Category methods automatically check if enabled - zero cost if disabled
	log.DebugAuth("digest challenge parsed", "realm", "IP Camera(21388)")
	log.DebugRTP("packet received", "seq", 12345)
}
