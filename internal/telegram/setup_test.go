package telegram

import (
	"context"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/bot/handlers"
)

type fakeRegistrar struct {
	patterns map[string]bot.HandlerFunc
	matchers []bot.MatchFunc
}

func (r *fakeRegistrar) RegisterHandler(_ bot.HandlerType, pattern string, _ bot.MatchType, f bot.HandlerFunc, _ ...bot.Middleware) string {
	if r.patterns == nil {
		r.patterns = make(map[string]bot.HandlerFunc)
	}
	r.patterns[pattern] = f
	return pattern
}

func (r *fakeRegistrar) RegisterHandlerMatchFunc(match bot.MatchFunc, f bot.HandlerFunc, _ ...bot.Middleware) string {
	r.matchers = append(r.matchers, match)
	return "match"
}

func TestRegisterHandlers(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}

	reg := &fakeRegistrar{}
	err := RegisterHandlers(reg, nil, map[string]handlers.RegisteredHandler{
		"/next": {
			HandlerType: bot.HandlerTypeMessageText,
			Pattern:     "next",
			Handler:     func(context.Context, *bot.Bot, *models.Update) { order = append(order, "handler") },
			Middleware:  []bot.Middleware{mw("outer"), mw("inner")},
		},
		"members": {
			Handler: func(context.Context, *bot.Bot, *models.Update) {},
			Match:   func(*models.Update) bool { return true },
		},
		"nil": {Pattern: "nil"},
	})
	if err != nil {
		t.Fatalf("RegisterHandlers() error = %v", err)
	}

	next, ok := reg.patterns["next"]
	if len(reg.patterns) != 1 || !ok {
		t.Fatalf("registered %d patterns, want only next", len(reg.patterns))
	}
	if len(reg.matchers) != 1 {
		t.Errorf("registered %d match handlers, want 1", len(reg.matchers))
	}

	next(context.Background(), nil, &models.Update{})
	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("call order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call order = %v, want %v", order, want)
			break
		}
	}
}

func TestRegisterHandlersNilBot(t *testing.T) {
	t.Parallel()
	if err := RegisterHandlers(nil, nil, nil); err == nil {
		t.Error("RegisterHandlers(nil) succeeded, want error")
	}
}

func TestTokenPrefix(t *testing.T) {
	t.Parallel()
	if got := tokenPrefix("123"); got != "..." {
		t.Errorf("tokenPrefix(short) = %q", got)
	}
	if got := tokenPrefix("123456789:ABC"); got != "12345678..." {
		t.Errorf("tokenPrefix(long) = %q", got)
	}
}
