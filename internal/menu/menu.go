// Package menu runs the two-button menu: BOOT moves to the next entry,
// POWER selects it, holding POWER powers off, and inactivity closes the menu.
package menu

import (
	"context"
	"log"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
)

// DefaultTimeout closes an idle menu.
const DefaultTimeout = 30 * time.Second

// Action is what the caller should do after the menu closes.
type Action int

const (
	ActionExit Action = iota
	ActionBack
	ActionRefresh
	ActionRestart
	ActionFactoryReset
	ActionPowerOff
)

func (a Action) String() string {
	switch a {
	case ActionBack:
		return "back"
	case ActionRefresh:
		return "refresh"
	case ActionRestart:
		return "restart"
	case ActionFactoryReset:
		return "factory reset"
	case ActionPowerOff:
		return "power off"
	default:
		return "exit"
	}
}

// Item is one menu entry. Selecting it opens Sub if set, runs Do and stays
// open if set, and otherwise closes the menu with Action.
type Item struct {
	Label  string
	Value  func() string
	Action Action
	Do     func()
	Sub    []Item
}

func (it Item) text() string {
	if it.Value != nil {
		return it.Label + ": " + it.Value()
	}
	return it.Label
}

// Source blocks for the next input event or the timeout.
type Source interface {
	Wait(ctx context.Context, timeout time.Duration) (logic.Event, bool)
}

// Renderer draws a menu screen.
type Renderer interface {
	Menu(title string, items []string, selected int)
}

// Navigator drives menus from button events.
type Navigator struct {
	Source  Source
	Screen  Renderer
	Timeout time.Duration
	// Click, if set, is called on every accepted button press.
	Click func()
}

// Run shows items under title until an action closes it.
func (n *Navigator) Run(ctx context.Context, title string, items []Item) Action {
	if len(items) == 0 {
		return ActionExit
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sel := 0
	n.draw(title, items, sel)
	for {
		ev, ok := n.Source.Wait(ctx, timeout)
		if !ok {
			log.Printf("menu: %s closed (idle)", title)
			return ActionExit
		}
		switch ev.Type {
		case logic.EventBootPress:
			n.click()
			sel = (sel + 1) % len(items)
			n.draw(title, items, sel)
		case logic.EventPowerPress:
			n.click()
			it := items[sel]
			switch {
			case it.Sub != nil:
				if a := n.Run(ctx, it.Label, it.Sub); a != ActionBack {
					return a
				}
				n.draw(title, items, sel)
			case it.Do != nil:
				it.Do()
				n.draw(title, items, sel)
			default:
				log.Printf("menu: %s -> %s", it.Label, it.Action)
				return it.Action
			}
		case logic.EventPowerHold:
			return ActionPowerOff
		}
	}
}

func (n *Navigator) click() {
	if n.Click != nil {
		n.Click()
	}
}

func (n *Navigator) draw(title string, items []Item, sel int) {
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.text()
	}
	n.Screen.Menu(title, labels, sel)
}
