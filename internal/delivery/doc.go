// Package delivery implements the three-leg artifact handoff with the
// remote exam service: negotiate a destination, transfer the payload, then
// confirm receipt. An artifact only counts as delivered once the confirm
// leg succeeds.
package delivery
