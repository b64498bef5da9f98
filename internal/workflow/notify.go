// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package workflow

import "sync"

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a user-visible message. Details are shown one per line.
type Notification struct {
	Level   Level
	Title   string
	Message string
	Details []string
}

// Notifier receives notifications. It may be called from any goroutine.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Notifications records notifications in memory.
type Notifications struct {
	mu    sync.Mutex
	items []Notification
}

var _ Notifier = (*Notifications)(nil)

func (n *Notifications) Notify(item Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

// All returns a copy of everything recorded so far.
func (n *Notifications) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.items...)
}

// Last returns the most recent notification.
func (n *Notifications) Last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return Notification{}, false
	}
	return n.items[len(n.items)-1], true
}
