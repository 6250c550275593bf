// Package imagedist decides, per preload image, how a pool's nodes obtain
// it: pull from a private mirror, run the P2P protocol with a subset of
// nodes seeding from the origin registry, or pull directly. It never moves
// bytes itself — pkg/p2p and the ComputePlatform start-task environment
// carry out the decision (§4.D).
package imagedist
