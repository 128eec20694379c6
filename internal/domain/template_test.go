package domain

import "testing"

func TestTemplateRender(t *testing.T) {
	t.Parallel()

	tpl := Template{
		ID:      "tpl-1",
		Channel: ChannelEmail,
		Subject: "Hi {{name}}",
		Content: "Hello {{name}}, your code is {{code}}.",
	}

	got := tpl.Render(map[string]any{"name": "Ada", "code": 4242})
	want := "Hello Ada, your code is 4242."
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}

	if subject := tpl.RenderSubject(map[string]any{"name": "Ada"}); subject != "Hi Ada" {
		t.Fatalf("RenderSubject() = %q, want %q", subject, "Hi Ada")
	}
}

func TestTemplateRenderUnknownVariableLeftIntact(t *testing.T) {
	t.Parallel()

	tpl := Template{Content: "Hello {{name}}"}
	if got := tpl.Render(map[string]any{"other": "x"}); got != "Hello {{name}}" {
		t.Fatalf("Render() = %q, want placeholder left intact", got)
	}
}

func TestTemplateRenderSubjectFallback(t *testing.T) {
	t.Parallel()

	tpl := Template{Content: "body"}
	if got := tpl.RenderSubject(nil); got != "Notification" {
		t.Fatalf("RenderSubject() = %q, want Notification", got)
	}
}
