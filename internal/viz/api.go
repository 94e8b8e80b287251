package viz

import "github.com/dop251/goja"

// Enable installs the plot API into a goja runtime. Cells call it like:
//
//	plot.line([1, 4, 9], {title: "squares"})
//	plot.lineXY(xs, ys)
//	plot.scatter(xs, ys, {xlabel: "t", ylabel: "v"})
//	plot.bar([3, 1, 4])
//
// The options argument is optional; goja fills missing parameters with
// zero values, so a nil map simply means defaults.
func Enable(vm *goja.Runtime) error {
	return vm.Set("plot", map[string]interface{}{
		"line":    jsLine,
		"lineXY":  jsLineXY,
		"scatter": jsScatter,
		"bar":     jsBar,
	})
}

func jsLine(ys []float64, opts map[string]interface{}) {
	f := &Figure{Kind: KindLine, Series: []Series{{Ys: ys}}}
	applyOpts(f, opts)
	Enqueue(f)
}

func jsLineXY(xs, ys []float64, opts map[string]interface{}) {
	f := &Figure{Kind: KindLine, Series: []Series{{Xs: xs, Ys: ys}}}
	applyOpts(f, opts)
	Enqueue(f)
}

func jsScatter(xs, ys []float64, opts map[string]interface{}) {
	f := &Figure{Kind: KindScatter, Series: []Series{{Xs: xs, Ys: ys}}}
	applyOpts(f, opts)
	Enqueue(f)
}

func jsBar(ys []float64, opts map[string]interface{}) {
	f := &Figure{Kind: KindBar, Series: []Series{{Ys: ys}}}
	applyOpts(f, opts)
	Enqueue(f)
}

func applyOpts(f *Figure, opts map[string]interface{}) {
	if opts == nil {
		return
	}
	if v, ok := opts["title"].(string); ok {
		f.Title = v
	}
	if v, ok := opts["xlabel"].(string); ok {
		f.XLabel = v
	}
	if v, ok := opts["ylabel"].(string); ok {
		f.YLabel = v
	}
	if v, ok := opts["label"].(string); ok && len(f.Series) > 0 {
		f.Series[0].Label = v
	}
}
