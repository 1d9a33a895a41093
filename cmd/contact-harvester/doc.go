// Package main hosts the contact-harvester entrypoint.
//
// Architecture overview:
//   - Harvest loop: internal/harvest loads the dataset, the emails table and the not-accessible table through
//     table.Store, then walks pending rows (status column blank) one at a time. Each row fetches the website with the
//     Colly fetcher, discovers up to harvest.max_subpages same-site links with goquery, and keeps emails matching the
//     role prefixes. A row with at least one match is YES; everything else is NO.
//   - Checkpointing: all three tables are rewritten after every row through a temp file and rename. Rows already
//     marked YES or NO are never revisited, so rerunning after an interrupt or budget stop resumes.
//   - Drive sync: internal/syncer downloads the dataset from Google Drive (or GCS, or a local directory), stamps every
//     row with the sync time, and uploads it back.
//   - Plumbing: Viper reads config from file and HARVESTER_* env vars; zap provides structured logging; Prometheus
//     counters are exported on /metrics when metrics.listen_addr is set; run summaries go to Pub/Sub when configured.
//
// Quick checklist:
//   - Run locally: go run ./cmd/contact-harvester harvest --config config.yaml --budget 30m
//   - Scheduled job: sync download, harvest, sync upload; set GDRIVE_CREDENTIALS to the service account JSON and
//     HARVESTER_REMOTE_FILE_ID to the spreadsheet ID.
//   - SIGINT/SIGTERM stops after the current row's fetch is abandoned; the row stays pending and the tables are saved.
package main
