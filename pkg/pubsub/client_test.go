package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/packclaim/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name    string
		project string
		input   string
		want    string
	}{
		{name: "short id", project: "proj", input: "pc-pack-events", want: "projects/proj/topics/pc-pack-events"},
		{name: "full path", project: "proj", input: "projects/other/topics/x", want: "projects/other/topics/x"},
		{name: "blank", project: "proj", input: "  ", want: ""},
		{name: "no project", project: "", input: "x", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResourceName(tc.project, "topics", tc.input); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := TopicNames(config.PubSubConfig{NotificationTopic: "n", PackTopic: " "})
	if len(names) != 1 || names[0] != "n" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatalf("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
