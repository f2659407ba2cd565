// Copyright 2024-2026 Aiku AI

package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestProxyHappyPath verifies the pipeline: delete the original first, then
// send the proxied copy, then commit the mapping.
func TestProxyHappyPath(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleMessage(context.Background(), refMessage("orig-1", "b:hello world"))

	names := gw.OpNames()
	if len(names) != 2 || names[0] != "delete" || names[1] != "send" {
		t.Fatalf("ops = %v, want [delete send]", names)
	}
	ops := gw.Ops()
	if ops[0].Message != "orig-1" {
		t.Errorf("deleted %s, want orig-1", ops[0].Message)
	}
	if ops[1].Req.Content != "hello world" {
		t.Errorf("sent content %q, want %q", ops[1].Req.Content, "hello world")
	}
	m, ok := engine.store.LookupByOriginal("orig-1")
	if !ok {
		t.Fatal("no mapping recorded")
	}
	if m.ProxiedID != "proxied-1" || m.ChannelID != testChannel || m.Content != "hello world" {
		t.Errorf("mapping = %+v", m)
	}
}

// TestProxyIgnoresOtherAuthors verifies nothing happens for other users,
// even for command-shaped messages.
func TestProxyIgnoresOtherAuthors(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	for _, content := range []string{"b:hello", "!edit hi", "!s/a/b/"} {
		evt := refMessage("m1", content)
		evt.Author = "someone-else"
		engine.HandleMessage(context.Background(), evt)
	}
	if len(gw.Ops()) != 0 {
		t.Errorf("ops = %v, want none", gw.OpNames())
	}
}

// TestProxyRequiresTag verifies untagged reference messages pass through
// untouched.
func TestProxyRequiresTag(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	engine.HandleMessage(context.Background(), refMessage("m1", "just talking"))
	if len(gw.Ops()) != 0 {
		t.Errorf("ops = %v, want none", gw.OpNames())
	}
}

// TestProxyEmptyContent verifies an empty capture is only proxied when the
// message carries attachments.
func TestProxyEmptyContent(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleMessage(context.Background(), refMessage("m1", "b:"))
	if len(gw.Ops()) != 0 {
		t.Fatalf("empty tag alone: ops = %v, want none", gw.OpNames())
	}

	evt := refMessage("m2", "b:")
	evt.Attachments = []Attachment{{Filename: "cat.png", URL: "https://cdn.example/cat.png"}}
	engine.HandleMessage(context.Background(), evt)
	names := gw.OpNames()
	if len(names) != 2 || names[1] != "send" {
		t.Fatalf("with attachment: ops = %v, want [delete send]", names)
	}
	if got := gw.Ops()[1].Req.Attachments; len(got) != 1 || got[0].Filename != "cat.png" {
		t.Errorf("attachments not carried: %+v", got)
	}
}

// TestProxyReplyRepointing verifies a reply to a mapped original is
// re-pointed at the proxied copy, and an unmapped reply passes through.
func TestProxyReplyRepointing(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	engine.store.Insert(MessageMapping{
		OriginalID: "o1", ProxiedID: "p1", ChannelID: testChannel, CreatedAt: time.Now(),
	})

	evt := refMessage("m1", "b:replying")
	evt.ReplyTo = "o1"
	engine.HandleMessage(context.Background(), evt)
	if got := gw.Ops()[1].Req.ReplyTo; got != "p1" {
		t.Errorf("reply target = %s, want p1", got)
	}

	gw.Reset()
	evt = refMessage("m2", "b:replying again")
	evt.ReplyTo = "unmapped"
	engine.HandleMessage(context.Background(), evt)
	if got := gw.Ops()[1].Req.ReplyTo; got != "unmapped" {
		t.Errorf("reply target = %s, want unmapped", got)
	}
}

// TestProxyEntityShift verifies the tag strip offset reaches the send
// request for entity re-anchoring.
func TestProxyEntityShift(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	evt := refMessage("m1", "b: hello")
	evt.Entities = []TextEntity{{Type: "bold", Offset: 3, Length: 5}}
	engine.HandleMessage(context.Background(), evt)

	req := gw.Ops()[1].Req
	if req.EntityShift != 3 {
		t.Errorf("entity shift = %d, want 3", req.EntityShift)
	}
	if len(req.Entities) != 1 || req.Entities[0].Type != "bold" {
		t.Errorf("entities not carried: %+v", req.Entities)
	}
}

// TestProxySendFailure verifies no mapping is committed when the proxied
// send fails.
func TestProxySendFailure(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	gw.sendErrs = []error{fmt.Errorf("boom")}

	res := engine.TryProxy(context.Background(), refMessage("orig-1", "b:hello"))
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if res.Err == nil {
		t.Error("expected error in result")
	}
	if engine.store.Len() != 0 {
		t.Error("mapping committed despite failed send")
	}
}

// TestProxyRateLimitRetry verifies exactly one re-send after a rate limit,
// both when it recovers and when it does not.
func TestProxyRateLimitRetry(t *testing.T) {
	t.Parallel()
	t.Run("recovers", func(t *testing.T) {
		t.Parallel()
		engine, gw := newTestEngine(t)
		gw.sendErrs = []error{ErrRateLimited}

		res := engine.TryProxy(context.Background(), refMessage("orig-1", "b:hello"))
		if res.Outcome != OutcomeProxied {
			t.Fatalf("outcome = %v, want proxied", res.Outcome)
		}
		if names := gw.OpNames(); len(names) != 3 || names[1] != "send" || names[2] != "send" {
			t.Errorf("ops = %v, want [delete send send]", names)
		}
	})
	t.Run("stays limited", func(t *testing.T) {
		t.Parallel()
		engine, gw := newTestEngine(t)
		gw.sendErrs = []error{ErrRateLimited, ErrRateLimited}

		res := engine.TryProxy(context.Background(), refMessage("orig-1", "b:hello"))
		if res.Outcome != OutcomeFailed {
			t.Fatalf("outcome = %v, want failed", res.Outcome)
		}
		if !errors.Is(res.Err, ErrRateLimited) {
			t.Errorf("err = %v, want rate limited", res.Err)
		}
		if sends := len(gw.OpNames()); sends != 3 {
			t.Errorf("ops = %v, want exactly one retry", gw.OpNames())
		}
		if engine.store.Len() != 0 {
			t.Error("mapping committed despite failed send")
		}
	})
}

// TestProxyDeletePermissionDenied verifies a delete the bot cannot perform
// still proxies; the original just stays visible.
func TestProxyDeletePermissionDenied(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	gw.failDelete = ErrPermissionDenied

	res := engine.TryProxy(context.Background(), refMessage("orig-1", "b:hello"))
	if res.Outcome != OutcomeProxied {
		t.Fatalf("outcome = %v, want proxied", res.Outcome)
	}
	if _, ok := engine.store.LookupByOriginal("orig-1"); !ok {
		t.Error("no mapping recorded")
	}
}

// TestProxyUpdatesSurvivor verifies a tagged message that already has a
// mapping (its delete failed earlier) updates the proxied copy instead of
// proxying twice.
func TestProxyUpdatesSurvivor(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	engine.store.Insert(MessageMapping{
		OriginalID: "orig-1", ProxiedID: "p1", ChannelID: testChannel,
		CreatedAt: time.Now(), Content: "old",
	})

	engine.HandleMessage(context.Background(), refMessage("orig-1", "b:new words"))

	names := gw.OpNames()
	if len(names) != 2 || names[0] != "edit" || names[1] != "delete" {
		t.Fatalf("ops = %v, want [edit delete]", names)
	}
	if op := gw.Ops()[0]; op.Message != "p1" || op.Content != "new words" {
		t.Errorf("edit = %+v, want p1 <- new words", op)
	}
	if engine.store.Len() != 1 {
		t.Errorf("store has %d mappings, want 1", engine.store.Len())
	}
	m, _ := engine.store.LookupByOriginal("orig-1")
	if m.CurrentContent() != "new words" {
		t.Errorf("current content = %q, want %q", m.CurrentContent(), "new words")
	}
}

// TestHandleMessageEdit verifies edits re-run the pipeline and unchanged
// content is ignored.
func TestHandleMessageEdit(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	engine.HandleMessageEdit(context.Background(), MessageEditEvent{
		Message:       refMessage("m1", "b:edited in a tag"),
		BeforeContent: "no tag before",
	})
	if names := gw.OpNames(); len(names) != 2 || names[1] != "send" {
		t.Fatalf("tagged edit: ops = %v, want [delete send]", names)
	}

	gw.Reset()
	engine.HandleMessageEdit(context.Background(), MessageEditEvent{
		Message:       refMessage("m2", "b:same"),
		BeforeContent: "b:same",
	})
	if len(gw.Ops()) != 0 {
		t.Errorf("unchanged edit: ops = %v, want none", gw.OpNames())
	}
}

// TestHandleMessageDelete verifies only the proxied side retires the
// mapping; a deletion of the original leaves the proxied copy addressable.
func TestHandleMessageDelete(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)
	engine.store.Insert(MessageMapping{
		OriginalID: "o1", ProxiedID: "p1", ChannelID: testChannel, CreatedAt: time.Now(),
	})

	engine.HandleMessageDelete(context.Background(), MessageDeleteEvent{ID: "o1", ChannelID: testChannel})
	if engine.store.Len() != 1 {
		t.Fatal("mapping retired by deletion of its original side")
	}

	engine.HandleMessageDelete(context.Background(), MessageDeleteEvent{ID: "p1", ChannelID: testChannel})
	if engine.store.Len() != 0 {
		t.Error("mapping survived deletion of its proxied side")
	}
}

// TestProxyDeleteEchoKeepsMapping verifies the delete event the platform
// emits for the engine's own removal of the original, which can land after
// the mapping commit, does not tear the fresh mapping down; follow-up
// edits still reach the proxied copy.
func TestProxyDeleteEchoKeepsMapping(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	res := engine.TryProxy(context.Background(), refMessage("orig-1", "b:hello world"))
	if res.Outcome != OutcomeProxied {
		t.Fatalf("outcome = %v, want proxied", res.Outcome)
	}

	engine.HandleMessageDelete(context.Background(), MessageDeleteEvent{ID: "orig-1", ChannelID: testChannel})
	if _, ok := engine.store.LookupByOriginal("orig-1"); !ok {
		t.Fatal("mapping retired by the delete echo of the original")
	}

	gw.Reset()
	cmd := refMessage("cmd-1", "!edit fixed words")
	cmd.ReplyTo = res.Mapping.ProxiedID
	engine.HandleMessage(context.Background(), cmd)

	ops := gw.Ops()
	if len(ops) == 0 || ops[0].Op != "edit" {
		t.Fatalf("ops = %v, want edit first", gw.OpNames())
	}
	if ops[0].Message != res.Mapping.ProxiedID || ops[0].Content != "fixed words" {
		t.Errorf("edit = %+v, want %s <- %q", ops[0], res.Mapping.ProxiedID, "fixed words")
	}
}

// TestCloseRejectsNewWork verifies events arriving after Close are dropped.
func TestCloseRejectsNewWork(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)
	if err := engine.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	engine.HandleMessage(context.Background(), refMessage("m1", "b:hello"))
	if len(gw.Ops()) != 0 {
		t.Errorf("ops after close = %v, want none", gw.OpNames())
	}
	res := engine.TryProxy(context.Background(), refMessage("m2", "b:hello"))
	if res.Outcome != OutcomeNotApplicable {
		t.Errorf("TryProxy after close = %v, want not applicable", res.Outcome)
	}
}

// TestCloseDrainBounded verifies Close gives up when in-flight work
// outlives the context.
func TestCloseDrainBounded(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)
	done, ok := engine.track()
	if !ok {
		t.Fatal("track refused before close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := engine.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close with work in flight = %v, want deadline exceeded", err)
	}

	done()
	if err := engine.Close(context.Background()); err != nil {
		t.Fatalf("Close after drain: %v", err)
	}
}

// TestCloseConcurrentWithIntake verifies events racing Close are either
// fully processed before Close returns or not admitted at all.
func TestCloseConcurrentWithIntake(t *testing.T) {
	t.Parallel()
	engine, gw := newTestEngine(t)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.HandleMessage(context.Background(), refMessage(fmt.Sprintf("orig-%d", i), "b:hi"))
		}(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	admitted := engine.store.Len()
	sends := 0
	for _, op := range gw.Ops() {
		if op.Op == "send" {
			sends++
		}
	}
	if sends != admitted {
		t.Errorf("%d sends but %d mappings: admitted work did not finish before Close returned", sends, admitted)
	}

	engine.HandleMessage(context.Background(), refMessage("late-1", "b:late"))
	if engine.store.Len() != admitted {
		t.Error("work admitted after Close returned")
	}
}

// TestProxyConcurrentDistinctMessages verifies pipelines for different
// messages run without interference and each commits its own mapping.
func TestProxyConcurrentDistinctMessages(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	const n = 16
	doneCh := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer func() { doneCh <- struct{}{} }()
			engine.HandleMessage(context.Background(), refMessage(fmt.Sprintf("orig-%d", i), "b:hi"))
		}(i)
	}
	for i := 0; i < n; i++ {
		<-doneCh
	}
	if engine.store.Len() != n {
		t.Errorf("store has %d mappings, want %d", engine.store.Len(), n)
	}
}
