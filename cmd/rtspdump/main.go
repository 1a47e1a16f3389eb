// Command rtspdump connects to an RTSP camera, runs the handshake, and
// logs stream statistics until interrupted. It exists to exercise the
// client's embedder API end to end against a live camera.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethan/rtspcam-client/pkg/config"
	"github.com/ethan/rtspcam-client/pkg/logger"
	"github.com/ethan/rtspcam-client/pkg/rtsp"
)

func main() {
	fs := flag.NewFlagSet("rtspdump", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)

	var (
		username  = fs.String("username", "", "RTSP username")
		password  = fs.String("password", "", "RTSP password")
		transport = fs.String("transport", "tcp", "Transport mode: tcp, udp, or multicast")
		media     = fs.String("media", "both", "Media to request: video, audio, or both")
		strict    = fs.Bool("strict-sdp", false, "Reject malformed SDP instead of tolerating it")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <rtsp-url>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Connect to an RTSP camera and dump stream statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	transportMode, err := config.ParseTransportMode(*transport)
	if err != nil {
		log.Error("invalid transport", "error", err)
		os.Exit(1)
	}
	mediaMask, err := config.ParseMediaMask(*media)
	if err != nil {
		log.Error("invalid media selection", "error", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig(fs.Arg(0))
	cfg.Username = *username
	cfg.Password = *password
	cfg.Transport = transportMode
	cfg.Media = mediaMask
	cfg.StrictSDP = *strict

	client, err := rtsp.New(cfg, log)
	if err != nil {
		log.Error("failed to construct client", "error", err)
		os.Exit(1)
	}
	client.TLSDial = func(network, address string) (net.Conn, error) {
		return tls.Dial(network, address, &tls.Config{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		client.Stop() //nolint:errcheck
		cancel()
	}()

	var videoFrames, audioFrames atomic.Uint64
	var videoBytes, audioBytes atomic.Uint64

	client.OnNewVideoStream = func(codec string, params map[string]string) {
		log.Info("video stream negotiated", "codec", codec, "fmtp", params)
	}
	client.OnNewAudioStream = func(codec string, params map[string]string) {
		log.Info("audio stream negotiated", "codec", codec, "fmtp", params)
	}
	client.OnVideoData = func(frame []byte, wallclock time.Time) {
		videoFrames.Add(1)
		videoBytes.Add(uint64(len(frame)))
	}
	client.OnAudioData = func(frame []byte, wallclock time.Time) {
		audioFrames.Add(1)
		audioBytes.Add(uint64(len(frame)))
	}
	client.OnSetupComplete = func() {
		log.Info("setup complete, starting playback")
		if err := client.Play(); err != nil {
			log.Error("play failed", "error", err)
			cancel()
		}
	}
	client.OnStreamingFinished = func(err error) {
		if err != nil {
			log.Error("streaming finished with error", "error", err)
		} else {
			log.Info("streaming finished")
		}
		cancel()
	}

	log.Info("connecting", "url", fs.Arg(0), "transport", transportMode.String(), "media", *media)
	client.Connect()

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown complete",
				"video_frames", videoFrames.Load(), "video_bytes", videoBytes.Load(),
				"audio_frames", audioFrames.Load(), "audio_bytes", audioBytes.Load())
			return
		case <-statsTicker.C:
			log.Info("stream statistics",
				"status", client.Status().String(),
				"video_frames", videoFrames.Load(), "video_bytes", videoBytes.Load(),
				"audio_frames", audioFrames.Load(), "audio_bytes", audioBytes.Load())
		}
	}
}
