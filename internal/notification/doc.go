// Package notification defines the status payload published by the batch
// platform for every job milestone and decodes it from raw channel messages.
package notification
