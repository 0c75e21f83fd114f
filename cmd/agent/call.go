package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/whalespump/live-support/pkg/device"
	"github.com/whalespump/live-support/pkg/orchestrator"
	"github.com/whalespump/live-support/pkg/tools"
	"go.uber.org/zap"
)

// runCall places one live voice call on the local audio devices.
func (a *agent) runCall(ctx context.Context) error {
	backend, err := device.NewBackend(a.cfg.CaptureBackend, a.cfg.PlaybackBackend, a.adapter.With("component", "device"))
	if err != nil {
		return err
	}
	live, err := a.liveClient()
	if err != nil {
		return err
	}

	transcript := orchestrator.NewTranscript(a.core.MaxTranscriptSize)
	printMessages(transcript)
	dispatcher := tools.New(a.cfg.Tools(), transcript)

	orch := orchestrator.NewWithLogger(live, dispatcher, backend, a.core, a.adapter.With("component", "call"))
	defer orch.Close()
	orch.SetRecorder(a.metrics)

	if chat, err := a.chatProvider(ctx); err != nil {
		a.log.Warn("Text chat unavailable", zap.Error(err))
	} else {
		orch.AttachConversation(orchestrator.NewConversation(chat, dispatcher, a.core, transcript, a.adapter))
	}

	fmt.Printf("Configured: LIVE=%s | MODEL=%s | AUDIO=%s\n", live.Name(), a.core.LiveModel, backend)
	fmt.Println("Type m + Enter to mute or unmute, Enter to hang up, Ctrl+C to exit")

	ended := make(chan struct{})
	go a.printEvents(orch.Events(), ended)

	if err := orch.StartSession(ctx); err != nil {
		return err
	}

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- strings.TrimSpace(scanner.Text())
		}
		close(input)
	}()

	for {
		select {
		case <-ctx.Done():
			orch.EndSession()
			return nil
		case <-ended:
			return nil
		case line, ok := <-input:
			if !ok || line == "" {
				orch.EndSession()
				return nil
			}
			if strings.EqualFold(line, "m") {
				if orch.ToggleMute() {
					fmt.Printf("\r\033[K🔇 [MIC] Muted\n")
				} else {
					fmt.Printf("\r\033[K🎤 [MIC] Live\n")
				}
			}
		}
	}
}

// printEvents renders call events and closes ended once a call that got
// past connecting drops back to disconnected.
func (a *agent) printEvents(events <-chan orchestrator.OrchestratorEvent, ended chan<- struct{}) {
	started := false
	for event := range events {
		switch event.Type {
		case orchestrator.StateChanged:
			state := event.Data.(orchestrator.ConnectionState)
			fmt.Printf("\r\033[K📞 [CALL] %s\n", state)
			if state != orchestrator.StateDisconnected {
				started = true
			} else if started {
				close(ended)
				started = false
				ended = nil
			}
		case orchestrator.AgentSpeaking:
			fmt.Printf("\r\033[K🔊 [AGENT] Speaking...\n")
		case orchestrator.AgentSilent:
			fmt.Printf("\r\033[K⌛ [AGENT] Listening...\n")
		case orchestrator.UserSpeaking:
			fmt.Printf("\r\033[K🎤 [USER] Speaking...\n")
		case orchestrator.Interrupted:
			fmt.Printf("\r\033[K🛑 [INTERRUPTED] %v chunks dropped\n", event.Data)
		case orchestrator.ToolInvoked:
			if data, ok := event.Data.(map[string]any); ok {
				fmt.Printf("\r\033[K🛠  [TOOL] %v\n", data["name"])
			}
		case orchestrator.CallDuration:
			if secs, ok := event.Data.(int64); ok {
				fmt.Printf("\r\033[K⏱  %s", time.Duration(secs)*time.Second)
			}
		case orchestrator.ErrorEvent:
			fmt.Printf("\r\033[K❌ [ERROR] %v\n", event.Data)
		}
	}
}
