// Package uploadcheck holds the pre-flight policy for staged audio files.
//
// Policy.Check is a pure predicate over (MIME type, size) that accepts only
// WAV and MPEG audio up to a configured ceiling. Rejections carry a Reason
// and convert into *ValidationError values matching services.ErrValidation.
// DetectMIME resolves the type of a file on disk from its extension or its
// leading bytes.
package uploadcheck
