package common

// DefaultCategoryLabel is the inbox label given to notes uploaded without a
// category.
const DefaultCategoryLabel = "Inbox"

// AuthorizationHeader carries "Bearer <jwt>" on API requests.
const AuthorizationHeader = "Authorization"
