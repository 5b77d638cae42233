// Package sanitizer validates customer-supplied display names before they
// are persisted onto entitlement records.
//
// Billing processors occasionally deliver a customer name that is actually a
// payment-card number typed into the wrong field. Persisting that would put
// cardholder data into a store never meant to hold it, so card-like names
// are rejected and the prior name retained.
package sanitizer
