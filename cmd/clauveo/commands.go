package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/clauveo/internal/config"
	"github.com/kalambet/clauveo/internal/session"
)

type availability struct {
	Available bool   `json:"available"`
	Strategy  string `json:"strategy"`
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Drive the recording session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current recording session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRequest(cmd, "GET", "/session", nil)
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRequest(cmd, "POST", "/session/start", nil)
	},
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop recording and wait for metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRequest(cmd, "POST", "/session/stop", nil)
	},
}

var sessionSubmitCmd = &cobra.Command{
	Use:   "submit <file|->",
	Short: "Submit recording metadata JSON",
	Long: `Submit recording metadata produced by an analyzer.

Examples:
  clauveo session submit metadata.json
  analyzer --json | clauveo session submit -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("reading metadata: %w", err)
		}
		return sessionRequest(cmd, "POST", "/session/metadata", json.RawMessage(data))
	},
}

var sessionAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Derive metadata from a transcript and on-screen text",
	Long: `Run the built-in analyzer over the current session and store its metadata.

Examples:
  clauveo session analyze --transcript "the login button does nothing"
  clauveo session analyze --screen-text "Login" --screen-text "TypeError" --frames 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transcript, _ := cmd.Flags().GetString("transcript")
		screenText, _ := cmd.Flags().GetStringArray("screen-text")
		frames, _ := cmd.Flags().GetUint32("frames")

		req := map[string]any{
			"transcript":      transcript,
			"screen_text":     screenText,
			"frames_analyzed": frames,
		}
		return sessionRequest(cmd, "POST", "/session/analyze", req)
	},
}

var sessionFailCmd = &cobra.Command{
	Use:   "fail <message>",
	Short: "Mark the session as failed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]string{"message": strings.Join(args, " ")}
		return sessionRequest(cmd, "POST", "/session/error", req)
	},
}

func init() {
	sessionCmd.PersistentFlags().Bool("json", false, "print the raw session JSON")

	sessionAnalyzeCmd.Flags().String("transcript", "", "what the user said")
	sessionAnalyzeCmd.Flags().StringArray("screen-text", nil, "text read from the screen (repeatable)")
	sessionAnalyzeCmd.Flags().Uint32("frames", 0, "number of frames the text was read from")

	sessionCmd.AddCommand(sessionShowCmd, sessionStartCmd, sessionStopCmd)
	sessionCmd.AddCommand(sessionSubmitCmd, sessionAnalyzeCmd, sessionFailCmd)
}

func sessionRequest(cmd *cobra.Command, method, path string, body any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}

	var s session.RecordingSession
	if err := decodeJSON(resp, &s); err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), s)
	}
	printSession(cmd.OutOrStdout(), s)
	return nil
}

func printSession(w io.Writer, s session.RecordingSession) {
	status := s.Status.String()
	if s.Status.State == session.StateError {
		status = colorize(colorRed, "Error: "+s.Status.Message)
	}
	fmt.Fprintf(w, "%s  %s\n", colorize(colorCyan, s.ID), status)
	if s.StartTime != nil {
		fmt.Fprintf(w, "  started:  %s\n", s.StartTime.Format(time.RFC3339))
	}
	if s.Duration != nil {
		fmt.Fprintf(w, "  duration: %s\n", time.Duration(*s.Duration)*time.Second)
	}
	if md := s.Metadata; md != nil {
		fmt.Fprintf(w, "  request:  %s (%s)\n", md.UserContext.RequestType, md.UserContext.UserEmotion)
		fmt.Fprintf(w, "  stack:    %s\n", md.TechnicalContext.DetectedFramework)
		if len(md.UserContext.IntentKeywords) > 0 {
			fmt.Fprintf(w, "  keywords: %s\n", strings.Join(md.UserContext.IntentKeywords, ", "))
		}
		if len(md.TechnicalContext.SuggestedFocus) > 0 {
			fmt.Fprintf(w, "  focus:    %s\n", strings.Join(md.TechnicalContext.SuggestedFocus, ", "))
		}
	}
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message and screenshots to the assistant",
	Long: `Send a message, optionally with screenshots and a transcript, to the
assistant CLI and print its reply.

Examples:
  clauveo ask "why does this button not respond?" --frame shot1.jpg --frame shot2.jpg
  clauveo ask "fix the layout" --transcript "the sidebar overlaps" --project .`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		framePaths, _ := cmd.Flags().GetStringArray("frame")
		transcript, _ := cmd.Flags().GetString("transcript")
		project, _ := cmd.Flags().GetString("project")
		sessionID, _ := cmd.Flags().GetString("session")

		frames, err := encodeFrames(framePaths)
		if err != nil {
			return err
		}

		req := map[string]any{
			"message":    strings.Join(args, " "),
			"frames":     frames,
			"transcript": transcript,
		}
		if project != "" {
			req["project_path"] = project
		}
		if sessionID != "" {
			req["session_id"] = sessionID
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(frames) > 0 {
			printStep("Sending %d screenshot(s) to the assistant", len(frames))
		}
		resp, err := client.post(cmd.Context(), "/assistant/messages", req)
		if err != nil {
			return err
		}

		var result struct {
			Response string `json:"response"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.Response)
		return nil
	},
}

func init() {
	askCmd.Flags().StringArray("frame", nil, "image file to attach (repeatable)")
	askCmd.Flags().String("transcript", "", "what the user said while recording")
	askCmd.Flags().String("project", "", "working directory for the assistant")
	askCmd.Flags().String("session", "", "recording session id (defaults to the current session)")
}

// encodeFrames reads image files and base64-encodes them for the wire.
func encodeFrames(paths []string) ([]string, error) {
	frames := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading frame: %w", err)
		}
		frames = append(frames, base64.StdEncoding.EncodeToString(data))
	}
	return frames, nil
}

// --- check / cleanup ---

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the assistant CLI can be launched",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/assistant/available")
		if err != nil {
			return err
		}

		var result availability
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Available {
			printError("Assistant CLI not found (strategy: %s)", result.Strategy)
			return fmt.Errorf("assistant unavailable")
		}
		printSuccess("Assistant CLI available (strategy: %s)", result.Strategy)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <session-id>",
	Short: "Remove scratch files left behind by a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0]+"/files")
		if err != nil {
			return err
		}

		var result struct {
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s", result.Message)
		return nil
	},
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Browse the assistant call log",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"created_at"`
			Message   string    `json:"message"`
			Status    string    `json:"status"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(interactions) == 0 {
			fmt.Fprintln(out, "No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			msg := ix.Message
			if r := []rune(msg); len(r) > 80 {
				msg = string(r[:80]) + "..."
			}
			status := ix.Status
			if status != "completed" {
				status = colorize(colorRed, status)
			}
			fmt.Fprintf(out, "%s  %s  %s  %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt.Local().Format(time.DateTime),
				status,
				msg,
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interactions/"+args[0])
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), interaction)
	},
}

var interactionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/interactions/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted interaction %s", args[0])
		return nil
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to show")

	interactionsCmd.AddCommand(interactionsListCmd, interactionsShowCmd, interactionsDeleteCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Valid keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
