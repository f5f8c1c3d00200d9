// Package retry decides whether a failed delivery is attempted again and how
// long to wait first.
//
// A Policy caps the total number of attempts. Permanent failures stop at once;
// transient failures back off exponentially; attempts rejected by an open
// circuit count against the cap but reuse the current backoff step, since the
// provider was never reached.
package retry
