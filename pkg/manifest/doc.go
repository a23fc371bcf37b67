/*
Package manifest records which templates a piece of compiled output was built
from, and when each of them was last modified.

A template engine saves a manifest right after compiling, then on the next
request asks Store.Fresh whether every dependency still carries the recorded
modification time; if not, it recompiles. Manifests live in SQLite (see
SetupSchema) or, for one-off checks, in a JSON file written by WriteFile.
*/
package manifest
