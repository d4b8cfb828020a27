package checkpoint

import (
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/BaSui01/queryflow/types"
)

// EmbeddingDims 嵌入向量维度
const EmbeddingDims = 384

// 伪随机尾部的幅度，使真实特征在余弦相似度中占主导
const tailScale = 0.05

// EmbeddingGenerator 从执行现场生成确定性的定长特征向量。
// 向量只用于尽力而为的相似检索，不参与任何精确查找。
type EmbeddingGenerator struct {
	dims int
}

// NewEmbeddingGenerator 创建生成器
func NewEmbeddingGenerator() *EmbeddingGenerator {
	return &EmbeddingGenerator{dims: EmbeddingDims}
}

// Dims 返回向量维度
func (g *EmbeddingGenerator) Dims() int {
	return g.dims
}

// Generate 生成嵌入。相同输入总是得到相同输出。
func (g *EmbeddingGenerator) Generate(queryID string, exec types.ExecutionContext, at time.Time) []float64 {
	vec := make([]float64, g.dims)
	features := g.features(exec, at)
	n := copy(vec, features)

	rng := splitmix64(fnv1a(queryID))
	for i := n; i < g.dims; i++ {
		vec[i] = rng.float() * tailScale
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (g *EmbeddingGenerator) features(exec types.ExecutionContext, at time.Time) []float64 {
	var completed, failed int
	var progress float64
	for _, t := range exec.Tasks {
		switch t.Status {
		case types.TaskCompleted:
			completed++
		case types.TaskFailed:
			failed++
		}
		progress += t.Progress
	}

	var active int
	for _, a := range exec.Agents {
		if a.CurrentTaskID != nil {
			active++
		}
	}

	// 按键排序求和，保证浮点结果与 map 迭代顺序无关
	keys := make([]string, 0, len(exec.Resources))
	for k := range exec.Resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var resourceSum float64
	for _, k := range keys {
		v := exec.Resources[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		resourceSum += v
	}

	var elapsed float64
	if !exec.StartedAt.IsZero() && at.After(exec.StartedAt) {
		elapsed = at.Sub(exec.StartedAt).Seconds()
	}

	tasks := len(exec.Tasks)
	return []float64{
		squash(float64(tasks)),
		ratio(completed, tasks),
		meanOf(progress, tasks) / 100,
		ratio(failed, tasks),
		squash(float64(len(exec.Agents))),
		ratio(active, len(exec.Agents)),
		squash(float64(len(exec.Resources))),
		squash(math.Log1p(math.Abs(resourceSum))),
		squash(float64(len(exec.Variables))),
		squash(elapsed / 60),
	}
}

// squash 把非负数映射到 [0,1)
func squash(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (1 + x)
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func meanOf(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func fnv1a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

type splitmix64 uint64

func (s *splitmix64) next() uint64 {
	*s += 0x9e3779b97f4a7c15
	z := uint64(*s)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// float 返回 [-1,1) 内的均匀值
func (s *splitmix64) float() float64 {
	return float64(s.next()>>11)/(1<<53)*2 - 1
}

// CosineSimilarity 余弦相似度。长度不一致或零向量返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
