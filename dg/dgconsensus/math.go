package dgconsensus

import "fmt"

// ByzantineMajority is the smallest weight strictly above two thirds of n,
// i.e. n-f where f = (n-1)/3 is the tolerated faulty weight.
// Compare against it with >=.
//
// It panics when n is zero.
func ByzantineMajority(n uint64) uint64 {
	mustPositive("ByzantineMajority", n)
	return n - (n-1)/3
}

// ByzantineMinority is the smallest weight that is at least one third of n.
// Any set with that much weight includes an honest member.
// Compare against it with >=.
//
// It panics when n is zero.
func ByzantineMinority(n uint64) uint64 {
	mustPositive("ByzantineMinority", n)
	if n%3 == 0 {
		return n / 3
	}
	return n/3 + 1
}

func mustPositive(fn string, n uint64) {
	if n == 0 {
		panic(fmt.Errorf("%s: n must be positive", fn))
	}
}
