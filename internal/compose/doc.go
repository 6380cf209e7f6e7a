// Package compose renders alerts as channel-agnostic structured text.
//
// An Alert carries a subject, a headline, labelled fields and a plain body.
// Field values are single-line and stripped of control characters; channel
// adapters apply their own encoding (HTML entities, MIME) on top.
//
// Rendering is deterministic: the same inputs always produce the same Alert.
package compose
