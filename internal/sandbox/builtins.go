package sandbox

// aggregateBuiltins defines the fixed set of aggregate functions the
// validated stats DSL is allowed to call, operating on the `frame` object
// injected per run. Every function is total over an empty column (count
// and sum return 0; mean/min/max/std return null rather than throwing,
// and Runner.Run reports a null result as a non-numeric error).
const aggregateBuiltins = `
function count(col) { return col.length; }
function sum(col) {
	var total = 0;
	for (var i = 0; i < col.length; i++) { total += col[i]; }
	return total;
}
function mean(col) {
	if (col.length === 0) { return null; }
	return sum(col) / col.length;
}
function min(col) {
	if (col.length === 0) { return null; }
	var m = col[0];
	for (var i = 1; i < col.length; i++) { if (col[i] < m) { m = col[i]; } }
	return m;
}
function max(col) {
	if (col.length === 0) { return null; }
	var m = col[0];
	for (var i = 1; i < col.length; i++) { if (col[i] > m) { m = col[i]; } }
	return m;
}
function std(col) {
	if (col.length === 0) { return null; }
	var m = mean(col);
	var variance = 0;
	for (var i = 0; i < col.length; i++) { variance += (col[i] - m) * (col[i] - m); }
	variance = variance / col.length;
	return Math.sqrt(variance);
}
`
