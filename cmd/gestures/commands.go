package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/loykin/gestures/internal/library"
	"github.com/loykin/gestures/pkg/client"
)

// command holds the daemon client and output shared by the CLI subcommands.
type command struct {
	api *client.Client
	out io.Writer
}

func (c command) Status(ctx context.Context) error {
	st, err := c.api.Status(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

func (c command) List(ctx context.Context) error {
	list, err := c.api.List(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, list)
	return nil
}

func (c command) Show(ctx context.Context, id string) error {
	rec, err := c.api.Get(ctx, id)
	if err != nil {
		return err
	}
	printJSON(c.out, rec)
	return nil
}

func (c command) RecordStart(ctx context.Context) error {
	started, err := c.api.StartRecording(ctx)
	if err != nil {
		if client.IsConflict(err) {
			return fmt.Errorf("already recording")
		}
		return err
	}
	_, _ = fmt.Fprintf(c.out, "recording %s (%s)\n", started.Name, started.ID)
	return nil
}

func (c command) RecordStop(ctx context.Context, f RecordStopFlags) error {
	resp, err := c.api.StopRecording(ctx, client.StopRequest{Discard: f.Discard, Reason: f.Reason})
	if err != nil {
		if client.IsConflict(err) {
			return fmt.Errorf("not recording")
		}
		return err
	}
	if !resp.Saved {
		_, _ = fmt.Fprintln(c.out, "nothing saved")
		return nil
	}
	r := resp.Recording
	_, _ = fmt.Fprintf(c.out, "saved %s (%s): %d events, %.0fms\n", r.Name, r.ID, len(r.Events), r.Duration)
	return nil
}

func (c command) Play(ctx context.Context, id string) error {
	started, err := c.api.Play(ctx, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "playing %s (%s)\n", started.Name, started.ID)
	return nil
}

func (c command) Stop(ctx context.Context) error {
	stopped, err := c.api.StopPlayback(ctx)
	if err != nil {
		return err
	}
	if stopped {
		_, _ = fmt.Fprintln(c.out, "playback stopped")
	} else {
		_, _ = fmt.Fprintln(c.out, "no playback running")
	}
	return nil
}

func (c command) Select(ctx context.Context, id string) error {
	return c.api.Select(ctx, id)
}

func (c command) Rename(ctx context.Context, id, name string) error {
	s, err := c.api.Rename(ctx, id, name)
	if err != nil {
		return err
	}
	printJSON(c.out, s)
	return nil
}

func (c command) Duplicate(ctx context.Context, id string) error {
	s, err := c.api.Duplicate(ctx, id)
	if err != nil {
		return err
	}
	printJSON(c.out, s)
	return nil
}

func (c command) Delete(ctx context.Context, id string) error {
	return c.api.Delete(ctx, id)
}

func (c command) Clear(ctx context.Context) error {
	return c.api.Clear(ctx)
}

// Export writes the library document to f.Output, "-" meaning stdout.
func (c command) Export(ctx context.Context, f ExportFlags) error {
	doc, err := c.api.Export(ctx)
	if err != nil {
		return err
	}
	if f.Output == "" || f.Output == "-" {
		_, err = c.out.Write(append(doc, '\n'))
		return err
	}
	if err := os.WriteFile(f.Output, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.Output, err)
	}
	_, _ = fmt.Fprintf(c.out, "exported to %s\n", f.Output)
	return nil
}

func (c command) Import(ctx context.Context, path string) error {
	// #nosec G304 -- path is an explicit CLI argument
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	n, err := c.api.Import(ctx, doc)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "imported %d gestures\n", n)
	return nil
}

func (c command) Cue(ctx context.Context, id string) error {
	if err := c.api.Cue(ctx, id); err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("gesture %s: %w", id, library.ErrNotFound)
		}
		return err
	}
	_, _ = fmt.Fprintf(c.out, "cue sent for %s\n", id)
	return nil
}

func (c command) Emit(ctx context.Context, f EmitFlags) error {
	payload := map[string]any{}
	if f.Payload != "" {
		if err := json.Unmarshal([]byte(f.Payload), &payload); err != nil {
			return fmt.Errorf("payload must be a JSON object: %w", err)
		}
	}
	kvs, err := parseKVs(f.Values)
	if err != nil {
		return err
	}
	for k, v := range kvs {
		payload[k] = v
	}
	return c.api.Emit(ctx, f.Type, payload)
}

func (c command) Parameters(ctx context.Context) error {
	ps, err := c.api.Parameters(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, ps)
	return nil
}

func (c command) SetParameter(ctx context.Context, name string, value float64) error {
	p, err := c.api.SetParameter(ctx, name, value)
	if err != nil {
		return err
	}
	printJSON(c.out, p)
	return nil
}
