// Package catalog splits the story catalog into the stories a user can
// still record and the stories they already have recordings for.
//
// Reconcile is the pure partition. Dashboard wraps it with the backend
// round trips that change either side: deleting a recording or story and
// creating a story. Every action confirms with the backend before local
// state changes, and the view is always recomputed from scratch.
package catalog
