// Package state keeps ephemeral multi-step interaction sessions (captcha
// challenges, pending duels, running games) keyed by feature, chat and
// participants.
//
// Sessions live in memory only and are lost on restart. Each session owns one
// expiry timer; rescheduling bumps a generation counter so a timer that fired
// late never runs the timeout action twice. Mutations of one session are
// serialized by a per-session lock.
package state
