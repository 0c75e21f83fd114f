package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/whalespump/live-support/pkg/audio"
	"github.com/whalespump/live-support/pkg/device"
	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/tools"
)

const (
	screenshotCaption = "Here is my balance screenshot."
	maxVoiceNote      = 60 * time.Second
)

// runChat is the text chat REPL with screenshot and voice-note upload.
func (a *agent) runChat(ctx context.Context) error {
	chat, err := a.chatProvider(ctx)
	if err != nil {
		return err
	}

	transcript := orchestrator.NewTranscript(a.core.MaxTranscriptSize)
	printMessages(transcript)
	transcript.Add(orchestrator.SenderAgent, tools.WelcomeMessage)

	dispatcher := tools.New(a.cfg.Tools(), transcript)
	conv := orchestrator.NewConversation(chat, dispatcher, a.core, transcript, a.adapter.With("component", "chat"))

	fmt.Println("Commands: /screenshot <path>, /voice <seconds>, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/screenshot":
			err = a.sendScreenshot(ctx, conv, arg)
		case "/voice":
			err = a.sendVoiceNote(ctx, conv, arg)
		default:
			_, err = conv.Send(ctx, line)
		}
		a.metrics.ChatTurn(err == nil)
		if err != nil {
			a.adapter.Warn("chat turn failed", "error", err)
		}
	}
}

func (a *agent) sendScreenshot(ctx context.Context, conv *orchestrator.Conversation, path string) error {
	if path == "" {
		fmt.Println("usage: /screenshot <path>")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("❌ Could not read %s: %v\n", path, err)
		return err
	}
	_, err = conv.SendMedia(ctx, screenshotCaption, data, http.DetectContentType(data))
	return err
}

func (a *agent) sendVoiceNote(ctx context.Context, conv *orchestrator.Conversation, arg string) error {
	secs, err := strconv.Atoi(arg)
	if err != nil || secs <= 0 {
		fmt.Println("usage: /voice <seconds>")
		return nil
	}
	d := time.Duration(secs) * time.Second
	if d > maxVoiceNote {
		d = maxVoiceNote
	}

	backend, err := device.NewBackend(a.cfg.CaptureBackend, a.cfg.PlaybackBackend, a.adapter.With("component", "device"))
	if err != nil {
		return err
	}

	fmt.Printf("🎙  Recording for %s...\n", d)
	rate := a.core.CaptureSampleRate
	samples, err := device.Record(ctx, backend, rate, d)
	if err != nil {
		fmt.Println("❌ Microphone access is required to send voice messages.")
		return err
	}

	wav := audio.NewWavBuffer(audio.EncodePCM16(samples), rate, 1)
	_, err = conv.SendMedia(ctx, "", wav, "audio/wav")
	return err
}
