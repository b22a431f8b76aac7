package normalize

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"notiflink/internal/host"
	"notiflink/internal/notification"
	logx "notiflink/pkg/logx"
)

var nopTrigger = notification.TriggerFunc(func(context.Context, string) error { return nil })

type namer map[string]string

func (n namer) AppName(pkg string) string { return n[pkg] }

type iconFunc func(pkg string) (image.Image, error)

func (f iconFunc) Icon(_ context.Context, pkg string, _ int) (image.Image, error) { return f(pkg) }

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestStripControl(t *testing.T) {
	got := StripControl("a\x00b\x07c\td\ne​")
	if got != "abc\td\ne​" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractText(t *testing.T) {
	ev := host.Event{Extras: host.Extras{Title: "T", Text: "short", BigText: "long form"}}
	if _, body := ExtractText(ev, false); body != "short" {
		t.Fatalf("body=%q", body)
	}
	if _, body := ExtractText(ev, true); body != "long form" {
		t.Fatalf("prefer long body=%q", body)
	}
	ev.Extras.BigText = "  "
	if _, body := ExtractText(ev, true); body != "short" {
		t.Fatalf("blank long form must be ignored, body=%q", body)
	}

	msg := host.Event{Extras: host.Extras{Messages: []host.Message{{Sender: "ann", Text: "one"}, {Sender: "bob", Text: "two"}}}}
	title, body := ExtractText(msg, false)
	if title != "bob" || body != "two" {
		t.Fatalf("messaging fallback: %q %q", title, body)
	}
}

func TestPictureRef(t *testing.T) {
	cases := []struct {
		ex   host.Extras
		want string
	}{
		{host.Extras{Picture: "pic://1", ContentURI: "content://x", ContentMIME: "image/png"}, "pic://1"},
		{host.Extras{ContentURI: "content://x", ContentMIME: "image/webp"}, "content://x"},
		{host.Extras{ContentURI: "content://x", ContentMIME: "Image/JPEG; q=1"}, "content://x"},
		{host.Extras{ContentURI: "content://x", ContentMIME: "video/mp4"}, ""},
		{host.Extras{}, ""},
	}
	for i, tc := range cases {
		if got := PictureRef(host.Event{Extras: tc.ex}); got != tc.want {
			t.Fatalf("case %d: got %q want %q", i, got, tc.want)
		}
	}
}

func TestNormalizeActions(t *testing.T) {
	n := New(Config{}, namer{"org.chat": "Chat"}, nil, logx.Nop())
	ev := host.Event{
		Key: "k", Package: "org.chat", When: 42, Category: "msg",
		Extras: host.Extras{
			Title: "Hi", Text: "there",
			Actions: []host.Action{{Title: "ignored", Trigger: nopTrigger}},
			WearableActions: []host.Action{
				{Title: "Reply", Reply: &notification.ReplyMeta{InputKey: "in", Choices: []string{"ok"}}, Trigger: nopTrigger},
				{Title: "Like", Trigger: nopTrigger},
			},
		},
	}
	spec, err := n.Normalize(context.Background(), ev, 5, &host.Ranking{DNDSuppressed: true})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	want := notification.Spec{
		ID: 5, When: 42, SourceAppID: "org.chat", SourceName: "Chat",
		Title: "Hi", Body: "there", Category: "msg",
		Type: notification.TypeUnknown, DNDSuppressed: true,
		PebbleColor: notification.ColorFallback,
		Actions: []notification.Action{
			{Title: dismissTitle, Kind: notification.DismissSynthetic, Handle: 80},
			{Title: "Reply", Kind: notification.WearableReply, Handle: 81, Reply: &notification.ReplyMeta{InputKey: "in", Choices: []string{"ok"}}},
			{Title: "Like", Kind: notification.WearableSimple, Handle: 82},
			{Title: openTitle, Kind: notification.OpenSynthetic, Handle: 83},
			{Title: muteTitle, Kind: notification.MuteSynthetic, Handle: 84},
		},
	}
	if diff := cmp.Diff(want, spec, cmpopts.IgnoreFields(notification.Action{}, "Trigger")); diff != "" {
		t.Fatalf("spec mismatch (-want +got):\n%s", diff)
	}
	if spec.Actions[1].Trigger == nil {
		t.Fatalf("host trigger must be carried")
	}
}

func TestNormalizeCustomFallbackAndCap(t *testing.T) {
	n := New(Config{}, nil, nil, logx.Nop())
	var acts []host.Action
	for i := 0; i < 20; i++ {
		acts = append(acts, host.Action{Title: "a", Trigger: nopTrigger})
	}
	acts[0].Reply = &notification.ReplyMeta{}
	spec, err := n.Normalize(context.Background(), host.Event{Key: "k", Package: "p", Extras: host.Extras{Actions: acts}}, 1, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(spec.Actions) != notification.MaxActions {
		t.Fatalf("actions=%d", len(spec.Actions))
	}
	if spec.Actions[1].Kind != notification.CustomReply || spec.Actions[2].Kind != notification.CustomSimple {
		t.Fatalf("kinds: %v %v", spec.Actions[1].Kind, spec.Actions[2].Kind)
	}
	last := spec.Actions[len(spec.Actions)-1]
	if last.Kind != notification.MuteSynthetic || last.Handle != notification.ActionHandle(1, 15) {
		t.Fatalf("last action %+v", last)
	}
	if spec.SourceName != "p" {
		t.Fatalf("source name fallback: %q", spec.SourceName)
	}
}

func TestGroupSummaryDrop(t *testing.T) {
	ctx := context.Background()
	n := New(Config{GroupSummaryAllow: []string{"allowed.app"}}, nil, nil, logx.Nop())

	summary := host.Event{Key: "k", Package: "org.mail", GroupSummary: true}
	if _, err := n.Normalize(ctx, summary, 1, nil); !errors.Is(err, ErrGroupSummary) {
		t.Fatalf("expected ErrGroupSummary, got %v", err)
	}

	summary.Extras.WearableActions = []host.Action{{Title: "Archive", Trigger: nopTrigger}}
	if _, err := n.Normalize(ctx, summary, 1, nil); err != nil {
		t.Fatalf("summary with wearable actions must pass: %v", err)
	}

	allowed := host.Event{Key: "k2", Package: "allowed.app", GroupSummary: true}
	if _, err := n.Normalize(ctx, allowed, 2, nil); err != nil {
		t.Fatalf("allow-listed summary must pass: %v", err)
	}
}

func TestMalformed(t *testing.T) {
	n := New(Config{}, nil, nil, logx.Nop())
	cases := []host.Event{
		{Package: "p"},
		{Key: "k"},
		{Key: "k", Package: "p", Extras: host.Extras{Actions: []host.Action{{Title: "x"}}}},
		{Key: "k", Package: "p", Extras: host.Extras{WearableActions: []host.Action{{Trigger: nopTrigger}}}},
	}
	for i, ev := range cases {
		if _, err := n.Normalize(context.Background(), ev, 1, nil); !errors.Is(err, ErrMalformed) {
			t.Fatalf("case %d: expected ErrMalformed, got %v", i, err)
		}
	}
}

func TestColor(t *testing.T) {
	calls := 0
	icons := iconFunc(func(pkg string) (image.Image, error) {
		calls++
		switch pkg {
		case "blue.app":
			return solid(color.RGBA{0, 0, 255, 255}), nil
		case "grey.app":
			return solid(color.RGBA{128, 128, 128, 255}), nil
		default:
			return nil, errors.New("no icon")
		}
	})
	n := New(Config{}, nil, icons, logx.Nop())
	ctx := context.Background()

	spec, err := n.Normalize(ctx, host.Event{Key: "k", Package: "blue.app"}, 1, nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if spec.PebbleColor != 0b11000011 {
		t.Fatalf("blue icon colour = %08b", spec.PebbleColor)
	}
	if _, err := n.Normalize(ctx, host.Event{Key: "k", Package: "blue.app"}, 1, nil); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cached colour, icon calls=%d", calls)
	}

	for _, pkg := range []string{"grey.app", "missing.app"} {
		spec, err := n.Normalize(ctx, host.Event{Key: "k", Package: pkg}, 1, nil)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if spec.PebbleColor != notification.ColorFallback {
			t.Fatalf("%s: expected fallback, got %08b", pkg, spec.PebbleColor)
		}
	}
	// A loaded icon without a dominant colour is cached; a missing one is retried.
	_, _ = n.Normalize(ctx, host.Event{Key: "k", Package: "grey.app"}, 1, nil)
	_, _ = n.Normalize(ctx, host.Event{Key: "k", Package: "missing.app"}, 1, nil)
	if calls != 4 {
		t.Fatalf("icon calls = %d, want 4", calls)
	}

	known := notification.TypeWhatsApp
	for pkg, typ := range map[string]notification.NotificationType{"com.whatsapp": known} {
		spec, _ := n.Normalize(ctx, host.Event{Key: "k", Package: pkg}, 1, nil)
		if spec.Type != typ || spec.PebbleColor != typ.Color() {
			t.Fatalf("known type %s: %v %08b", pkg, spec.Type, spec.PebbleColor)
		}
	}
}
