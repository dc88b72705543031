package web

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/localization"
)

func TestWidget(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, tt := range []struct {
		name     string
		rec      challenge.Record
		lang     string
		contains []string
		absent   []string
	}{
		{
			name: "svg inline",
			rec: challenge.Record{
				SessionID:    `s"1`,
				Solution:     "k7m2",
				Presentation: `<svg width="120" height="40"></svg>`,
				Format:       challenge.FormatSVG,
			},
			lang:     "en",
			contains: []string{
				`<svg width="120" height="40"></svg>`,
				`value="s&#34;1"`,
				"Security Verification",
				"expires in 5 minutes",
				`<a class="captchad-refresh" href="/api/captcha/widget?sessionId=s%221">New challenge</a>`,
			},
			absent:   []string{"k7m2"},
		},
		{
			name: "png image",
			rec: challenge.Record{
				SessionID:    "s2",
				Presentation: "data:image/png;base64,AAAA",
				Format:       challenge.FormatPNG,
			},
			lang:     "es",
			contains: []string{`<img src="data:image/png;base64,AAAA"`, "Verificar", `href="/api/captcha/widget?sessionId=s2">Nuevo desafío</a>`},
		},
		{
			name: "question escaped",
			rec: challenge.Record{
				SessionID:    "s3",
				Presentation: "<b>7 + 3 = ?</b>",
				Format:       challenge.FormatPlain,
			},
			lang:     "en",
			contains: []string{"&lt;b&gt;7 + 3 = ?&lt;/b&gt;", "Solve the problem"},
			absent:   []string{"<b>"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec.CreatedAt = now
			tt.rec.ExpiresAt = now.Add(5 * time.Minute)

			r := httptest.NewRequest("GET", "/widget", nil)
			r.Header.Set("Accept-Language", tt.lang)

			var buf bytes.Buffer
			if err := Widget(&tt.rec, "/api/captcha/verify", "/api/captcha/widget", localization.GetLocalizer(r)).Render(t.Context(), &buf); err != nil {
				t.Fatal(err)
			}

			out := buf.String()
			if !strings.Contains(out, `action="/api/captcha/verify"`) {
				t.Errorf("form action missing: %s", out)
			}

			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}

			for _, bad := range tt.absent {
				if strings.Contains(out, bad) {
					t.Errorf("output contains %q:\n%s", bad, out)
				}
			}
		})
	}
}
