// NotifyHub - Real-time Portal Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/notifyhub

package relay

import "sort"

// router maps channel names to member ids. byConn is the reverse index so
// leaveAll does not scan every channel. Empty channels are deleted.
type router struct {
	channels map[string]map[string]struct{}
	byConn   map[string]map[string]struct{}
}

func newRouter() *router {
	return &router{
		channels: make(map[string]map[string]struct{}),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// join is idempotent. Empty channel names are ignored.
func (r *router) join(channel, id string) {
	if channel == "" || id == "" {
		return
	}
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		r.channels[channel] = members
	}
	members[id] = struct{}{}

	joined, ok := r.byConn[id]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[id] = joined
	}
	joined[channel] = struct{}{}
}

// leave is idempotent and garbage-collects the channel when it empties.
func (r *router) leave(channel, id string) {
	if members, ok := r.channels[channel]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
	if joined, ok := r.byConn[id]; ok {
		delete(joined, channel)
		if len(joined) == 0 {
			delete(r.byConn, id)
		}
	}
}

// leaveAll removes id from every channel and returns how many it left.
func (r *router) leaveAll(id string) int {
	joined := r.byConn[id]
	n := len(joined)
	for channel := range joined {
		if members, ok := r.channels[channel]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(r.channels, channel)
			}
		}
	}
	delete(r.byConn, id)
	return n
}

func (r *router) isMember(channel, id string) bool {
	_, ok := r.channels[channel][id]
	return ok
}

// resolveTargets unions the portal channels named in portals. An empty list
// means every live connection, supplied by all.
func (r *router) resolveTargets(portals []string, all func() []string) []string {
	if len(portals) == 0 {
		return all()
	}

	set := make(map[string]struct{})
	for _, portal := range portals {
		if portal == "" {
			continue
		}
		for id := range r.channels[PortalChannel(portal)] {
			set[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// counts returns member counts per channel.
func (r *router) counts() map[string]int {
	out := make(map[string]int, len(r.channels))
	for name, members := range r.channels {
		out[name] = len(members)
	}
	return out
}

func (r *router) len() int {
	return len(r.channels)
}
