// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

/*
Package models defines the documents Everly stores and the shapes the API
returns for them.

Documents are stored as JSON in the document store, one collection each:

  - User (collection "users", unique indexes "email" and "google_id")
  - Diary (collection "diaries")
  - DiaryEntry (collection "diary_entries")
  - MediaFile (collection "media", keyed by stored file name)

Output types (UserOutput and friends) omit internal fields such as the
Google subject or filesystem paths.
*/
package models
