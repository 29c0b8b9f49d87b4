// Package webhook serves the GitHub webhook endpoint behind an HMAC-SHA256
// verification gate.
//
// # Security Model
//
//   - The request body is buffered once, bounded by MaxBodySize, and the
//     signature is computed over exactly those bytes
//   - Signatures are compared in constant time (crypto/hmac.Equal)
//   - A shared secret is mandatory; there is no unsigned pathway
//   - Rejections carry an empty body; the reason only reaches logs, metrics
//     and the activity feed
//   - The secret is never logged; only a short BLAKE3 fingerprint is
//
// # Request Flow
//
//  1. HTTP POST arrives at the configured path
//  2. Body read (413 if it exceeds the limit)
//  3. X-Hub-Signature-256 verified (400 if missing or malformed, 401 on mismatch)
//  4. Body restored for downstream handlers and stored in the request context
//  5. X-GitHub-Event resolved (400 if missing, 501 if unknown or unhandled)
//  6. Payload decoded (400 on failure)
//  7. Handler scheduled on the worker pool (503 while shutting down)
//  8. 200 OK with an empty body, without waiting for the handler
//
// # Example Usage
//
//	registry, err := event.NewBuilder().
//		OnFunc(event.IssueComment, func(ctx context.Context, p *payload.Payload) error {
//			slog.Info("comment", "repository", p.RepositoryName())
//			return nil
//		}).
//		Build()
//	if err != nil {
//		return err
//	}
//
//	server, err := webhook.NewServer(webhook.Config{
//		Listen: "127.0.0.1:8081",
//		Path:   "/webhook",
//		Secret: []byte(os.Getenv("GITHUB_WEBHOOK_SECRET")),
//	}, registry, logger)
//	if err != nil {
//		return err
//	}
//	return server.Start(ctx)
package webhook
