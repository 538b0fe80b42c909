// Package testutil provides in-memory fakes and fixtures for pipeline tests.
//
// MemoryStore mirrors the SQLite store's persist semantics without a
// database. ScriptedEnricher replays canned ESI responses per killmail id.
// Fixture builders produce ESI documents and matching events.
package testutil
