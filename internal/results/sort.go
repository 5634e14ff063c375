package results

import "sort"

// SortBucketsByAnomalyScore orders buckets by descending anomaly score.
// Buckets with equal scores keep their relative (time) order.
func SortBucketsByAnomalyScore(buckets []Bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].AnomalyScore > buckets[j].AnomalyScore
	})
}

// SortRecordsByProbability orders records most unusual first: ascending
// probability, ties broken by descending normalized probability.
func SortRecordsByProbability(records []AnomalyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Probability != records[j].Probability {
			return records[i].Probability < records[j].Probability
		}
		return records[i].NormalizedProbability > records[j].NormalizedProbability
	})
}
