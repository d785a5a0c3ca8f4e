// Package statesync keeps server state in sync with its consumers: results of
// remote queries are cached under a logical key, status transitions are
// pushed to subscribers, and mutations invalidate the queries they affect so
// subscribed ones refetch.
//
// Components:
//   - Client: owns the Query Entries (value, status, error) and runs fetches.
//   - Subscribe / FetchQuery: typed access to one query by Key.
//   - Mutation: one-shot operation with idle/pending/success/error status.
//   - Provider + GenStore + Codec[V] (optional): persist successful results so
//     a new process can hydrate them. Invalidation bumps a generation, so a
//     result written before it is never served again.
//
// Keys:
//
//	K("authUser")
//	K("userProfile", "ada")
//	K("posts", "user", "ada")   // Invalidate(ctx, K("posts")) matches it
//
// Typical flow:
//
//	sub, _ := statesync.Subscribe(ctx, client, statesync.Query[User]{Key: K("authUser"), Fetch: me})
//	for st := range sub.Updates() { render(st) }
//
//	follow := statesync.NewMutation(client, statesync.MutationOptions[string, Msg]{
//		Fn:          api.Follow,
//		Invalidates: []statesync.Key{K("authUser"), K("userProfile")},
//	})
//	_, err := follow.Trigger(ctx, userID) // subscribers of both prefixes refetch
//
// Ordering: by default the entry reflects the fetch that resolved last, even if
// it was issued earlier (Options.Ordering = LastResolved). LastIssued drops
// results older than the last applied one.
package statesync
