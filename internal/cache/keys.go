// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package cache

// Key builders for repository-derived entries. Invalidation relies on these
// shapes: the worker clears the direct entry, every listing page, and any
// composite key mentioning the repository.

// RepoKey is the direct cache entry for one repository.
func RepoKey(fullName string) string {
	return "repositories:" + fullName
}

// RepoListingPattern matches every paginated repository listing.
func RepoListingPattern() string {
	return "repositories:page:*"
}

// RepoWildcardPattern matches any composite entry naming the repository.
func RepoWildcardPattern(fullName string) string {
	return "repositories:*" + fullName + "*"
}

// BoardKey is the cached rendered board for one repository.
func BoardKey(fullName string) string {
	return "boards:" + fullName
}

// BoardPattern matches every board entry for the repository.
func BoardPattern(fullName string) string {
	return "boards:" + fullName + "*"
}
