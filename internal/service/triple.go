package service

import "sort"

// TripleSum 승리 조건: 서로 다른 세 수의 합
const TripleSum = 15

// FindTriple 합이 15인 세 수가 있는지 확인하고, 있으면 정렬 기준 사전순 첫 조합을 반환
func FindTriple(nums []int) ([3]int, bool) {
	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)

	held := make(map[int]bool, len(sorted))
	for _, n := range sorted {
		held[n] = true
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			k := TripleSum - sorted[i] - sorted[j]
			if k > sorted[j] && held[k] {
				return [3]int{sorted[i], sorted[j], k}, true
			}
		}
	}
	return [3]int{}, false
}

// CompletesTriple 새로 추가된 수를 포함하는 조합만 검사 (이전 호출에서 승리가 없었다는 전제)
func CompletesTriple(held []int, added int) ([3]int, bool) {
	seen := make(map[int]bool, len(held))
	for _, n := range held {
		seen[n] = true
	}

	var best [3]int
	found := false
	for _, a := range held {
		b := TripleSum - added - a
		if b <= a || b == added || a == added || !seen[b] {
			continue
		}
		candidate := [3]int{a, b, added}
		sort.Ints(candidate[:])
		if !found || lexLess(candidate, best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

func lexLess(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
