package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/felixgeelhaar/prnotify/pkg/application"
	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
)

func TestEventListener_DispatchesDomainEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	dispatcher := events.NewEventDispatcher()
	var got []*events.BaseEvent
	dispatcher.RegisterHandler("collect", func(_ context.Context, e events.DomainEvent) error {
		base, _ := events.AsBaseEvent(e)
		got = append(got, base)
		return nil
	}, events.Wildcard)

	listener := application.NewEventListener(dispatcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := application.NewNotifyService(f.store, notify.NewExtractor(integrator, ""), notify.Listeners{listener}, nil)

	if err := svc.Reconcile(ctx, integrate(openPR("JDK-2", "JDK-1"), commitHex)); err != nil {
		t.Fatal(err)
	}

	types := make([]string, 0, len(got))
	for _, e := range got {
		types = append(types, e.Type)
	}
	want := []string{
		events.EventTypePullRequestOpened,
		events.EventTypeIssueLinked,
		events.EventTypeIssueLinked,
		events.EventTypePullRequestIntegrated,
	}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	if got[1].MetaString(events.MetaIssue) != "JDK-1" || got[2].MetaString(events.MetaIssue) != "JDK-2" {
		t.Errorf("issue events out of order: %s, %s", got[1].MetaString(events.MetaIssue), got[2].MetaString(events.MetaIssue))
	}
	integrated := got[3]
	if integrated.MetaString(events.MetaCommit) != commitHex {
		t.Errorf("commit = %q", integrated.MetaString(events.MetaCommit))
	}
	if issues := integrated.MetaStrings(events.MetaIssues); !reflect.DeepEqual(issues, []string{"JDK-1", "JDK-2"}) {
		t.Errorf("issues = %v", issues)
	}
	if integrated.AggregateID() != "openjdk/jdk#42" {
		t.Errorf("aggregate = %q", integrated.AggregateID())
	}
}

func TestEventListener_HandlerErrorsDoNotFailReconcile(t *testing.T) {
	f := newFixture(t)

	dispatcher := events.NewEventDispatcher()
	dispatcher.RegisterHandler("failing", func(context.Context, events.DomainEvent) error {
		return errors.New("endpoint down")
	}, events.Wildcard)

	listener := application.NewEventListener(dispatcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := application.NewNotifyService(f.store, notify.NewExtractor(integrator, ""), notify.Listeners{listener}, nil)

	if err := svc.Reconcile(context.Background(), openPR("JDK-1")); err != nil {
		t.Fatalf("Reconcile should succeed, got %v", err)
	}
	f.stored(t, "openjdk/jdk#42")
}
