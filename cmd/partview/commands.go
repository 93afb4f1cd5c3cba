package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"goa.design/partview/features/stream/pulse"
	"goa.design/partview/runtime/dispatch"
	"goa.design/partview/runtime/history"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

func normalizeCmd(ctx context.Context, cfg config, in string) error {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	data, err := readInput(in)
	if err != nil {
		return err
	}
	conv, err := decodeConversation(rt.classifier, data)
	if err != nil {
		return err
	}
	out, stats := history.NewPipeline(rt.tel).Run(ctx, conv)
	log.Info(ctx,
		log.KV{K: "messages", V: len(out)},
		log.KV{K: "dropped", V: stats.Dropped()},
		log.KV{K: "reasoning-stripped", V: stats.ReasoningStripped})
	if out == nil {
		out = parts.Conversation{}
	}
	enc := json.NewEncoder(cfg.out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderCmd(ctx context.Context, cfg config, in, status string) error {
	st := parts.Status(status)
	if !st.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	data, err := readInput(in)
	if err != nil {
		return err
	}
	conv, err := decodeConversation(rt.classifier, data)
	if err != nil {
		return err
	}
	conv, _ = history.NewPipeline(rt.tel).Run(ctx, conv)
	for _, out := range rt.dispatcher.DispatchConversation(ctx, conv, st) {
		if err := writeOutput(cfg.out, out); err != nil {
			return err
		}
	}
	return nil
}

// importCmd stores the conversation as-is; normalization happens when the
// thread is read back.
func importCmd(ctx context.Context, cfg config, in, threadID string) error {
	if threadID == "" {
		return errors.New("-thread is required")
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	data, err := readInput(in)
	if err != nil {
		return err
	}
	conv, err := decodeConversation(rt.classifier, data)
	if err != nil {
		return err
	}
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(context.Background())

	now := time.Now().UTC()
	t := thread.Thread{ID: threadID, Messages: conv, CreatedAt: now, UpdatedAt: now}
	if err := b.store.SaveThread(ctx, t); err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	log.Print(ctx, log.KV{K: "thread", V: threadID}, log.KV{K: "messages", V: len(conv)})
	return nil
}

func publishCmd(ctx context.Context, cfg config, in, threadID string) error {
	if threadID == "" {
		return errors.New("-thread is required")
	}
	data, err := readInput(in)
	if err != nil {
		return err
	}
	arrivals, err := readArrivals(data)
	if err != nil {
		return err
	}
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(context.Background())
	if b.pulse == nil {
		return errors.New("publish requires REDIS_URL")
	}
	sink, err := pulse.NewSink(pulse.Options{
		Client: b.pulse,
		OnPublished: func(ctx context.Context, ev pulse.PublishedArrival) error {
			log.Debug(ctx, log.KV{K: "stream", V: ev.StreamID}, log.KV{K: "entry", V: ev.EntryID})
			return nil
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(context.Background()); err != nil {
			log.Errorf(ctx, err, "close pulse sink")
		}
	}()
	for i, a := range arrivals {
		if err := sink.Send(ctx, threadID, a); err != nil {
			return fmt.Errorf("publish arrival %d: %w", i+1, err)
		}
	}
	log.Print(ctx, log.KV{K: "thread", V: threadID}, log.KV{K: "published", V: len(arrivals)})
	return nil
}

// followCmd renders the stored history of a thread, then renders live
// arrivals until interrupted. With persist set, settled live messages are
// written back to the store.
func followCmd(ctx context.Context, cfg config, threadID, viewer, healthAddr string, persist bool) error {
	if threadID == "" {
		return errors.New("-thread is required")
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(context.Background())
	if b.pulse == nil {
		return errors.New("follow requires REDIS_URL")
	}
	if err := b.serveHealth(ctx, healthAddr); err != nil {
		return err
	}

	res, err := history.NewLoader(b.store, rt.tel).Load(ctx, threadID)
	if err != nil {
		return err
	}
	if !res.Exists {
		log.Print(ctx, log.KV{K: "thread", V: threadID}, log.KV{K: "history", V: "none"})
	}
	opts := []dispatch.SessionOption{
		dispatch.WithHistory(res.Messages),
		dispatch.WithClassifier(rt.classifier),
	}
	if persist {
		opts = append(opts, dispatch.WithOnSettled(newRecorder(b.store, threadID, res.Messages).settled))
	}
	sess := dispatch.NewSession(rt.dispatcher, opts...)
	out := printer(cfg.out)
	for _, o := range sess.Replay(ctx) {
		if err := out.Send(ctx, o); err != nil {
			return err
		}
	}

	sub, err := pulse.NewSubscriber(pulse.SubscriberOptions{Client: b.pulse, SinkName: viewerName(viewer)})
	if err != nil {
		return err
	}
	arrivals, errs, cancel, err := sub.Subscribe(ctx, threadID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	runErr := sess.Run(ctx, arrivals, out)
	cancel()
	if err, ok := <-errs; ok && err != nil {
		return err
	}
	return runErr
}

func deleteCmd(ctx context.Context, cfg config, threadID string) error {
	if threadID == "" {
		return errors.New("-thread is required")
	}
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(context.Background())
	if err := b.store.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread %q: %w", threadID, err)
	}
	log.Print(ctx, log.KV{K: "thread", V: threadID}, log.KV{K: "deleted", V: true})
	return nil
}

// viewerName defaults to a unique consumer group so that concurrent
// followers each receive every arrival.
func viewerName(name string) string {
	if name != "" {
		return name
	}
	return "partview_viewer_" + uuid.NewString()
}
