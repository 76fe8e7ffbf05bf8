package engine

import (
	"context"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/candidate"
	"github.com/nao1215/streamscout/internal/model"
)

// interactionTimeout bounds one click or key press.
const interactionTimeout = 5 * time.Second

// fallbackKeys are pressed when no play control was found.
var fallbackKeys = []browser.Key{browser.KeySpace, browser.KeyEnter}

// interact tries the play selectors one at a time across every frame.
// After a click it waits ClickSettle and stops as soon as the store has
// grown. If nothing was clicked it presses the fallback keys. It reports
// whether any click or key press went through.
func (c *Controller) interact(ctx context.Context, store *candidate.Store, baseline int, att *model.Attempt) bool {
	clicked := false
	for _, sel := range c.policy.Selectors {
		if ctx.Err() != nil {
			return clicked
		}

		ok, err := c.click(ctx, sel)
		if err != nil {
			c.logger.Debug("click failed", "error", &InteractionError{Action: sel, Err: err})
			continue
		}
		if !ok {
			continue
		}

		clicked = true
		c.logger.Info("clicked play control", "selector", sel)
		if sleep(ctx, c.policy.ClickSettle) != nil {
			return clicked
		}
		if store.Len() > baseline {
			break
		}
	}
	if clicked {
		return true
	}

	c.logger.Info("no play control found, sending keys")
	pressed := false
	for _, key := range fallbackKeys {
		if err := c.press(ctx, key); err != nil {
			ie := &InteractionError{Action: string(key), Err: err}
			c.logger.Warn("key press failed", "error", ie)
			att.Notes = append(att.Notes, ie.Error())
		} else {
			pressed = true
		}
		if sleep(ctx, c.policy.KeySettle) != nil {
			break
		}
	}
	return pressed
}

func (c *Controller) click(ctx context.Context, selector string) (bool, error) {
	ictx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	return c.session.QueryAndClick(ictx, []string{selector}, browser.ScopeAllFrames)
}

func (c *Controller) press(ctx context.Context, key browser.Key) error {
	ictx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()
	return c.session.PressKey(ictx, key)
}
