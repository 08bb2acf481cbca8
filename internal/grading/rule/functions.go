package rule

// arity is the inclusive argument count range of a spreadsheet function.
type arity struct {
	min, max int
}

const variadic = 255

var knownFunctions = map[string]arity{
	"ABS":          {1, 1},
	"AND":          {1, variadic},
	"AVERAGE":      {1, variadic},
	"AVERAGEIF":    {2, 3},
	"AVERAGEIFS":   {3, variadic},
	"CHOOSE":       {2, variadic},
	"COLUMNS":      {1, 1},
	"CONCAT":       {1, variadic},
	"CONCATENATE":  {1, variadic},
	"CORREL":       {2, 2},
	"COUNT":        {1, variadic},
	"COUNTA":       {1, variadic},
	"COUNTBLANK":   {1, 1},
	"COUNTIF":      {2, 2},
	"COUNTIFS":     {2, variadic},
	"DATE":         {3, 3},
	"DATEDIF":      {3, 3},
	"DAY":          {1, 1},
	"EDATE":        {2, 2},
	"EOMONTH":      {2, 2},
	"FILTER":       {2, 3},
	"FIND":         {2, 3},
	"FORECAST":     {3, 3},
	"GETPIVOTDATA": {2, variadic},
	"HLOOKUP":      {3, 4},
	"IF":           {2, 3},
	"IFERROR":      {2, 2},
	"IFNA":         {2, 2},
	"IFS":          {2, variadic},
	"INDEX":        {2, 4},
	"INDIRECT":     {1, 2},
	"ISBLANK":      {1, 1},
	"ISERROR":      {1, 1},
	"ISNUMBER":     {1, 1},
	"LARGE":        {2, 2},
	"LEFT":         {1, 2},
	"LEN":          {1, 1},
	"LET":          {3, variadic},
	"LOWER":        {1, 1},
	"MATCH":        {2, 3},
	"MAX":          {1, variadic},
	"MAXIFS":       {3, variadic},
	"MEDIAN":       {1, variadic},
	"MID":          {3, 3},
	"MIN":          {1, variadic},
	"MINIFS":       {3, variadic},
	"MODE":         {1, variadic},
	"MONTH":        {1, 1},
	"NETWORKDAYS":  {2, 3},
	"NOT":          {1, 1},
	"NOW":          {0, 0},
	"OFFSET":       {3, 5},
	"OR":           {1, variadic},
	"PMT":          {3, 5},
	"PROPER":       {1, 1},
	"RANK":         {2, 3},
	"RIGHT":        {1, 2},
	"ROUND":        {2, 2},
	"ROUNDDOWN":    {2, 2},
	"ROUNDUP":      {2, 2},
	"ROWS":         {1, 1},
	"SEARCH":       {2, 3},
	"SMALL":        {2, 2},
	"SORT":         {1, 4},
	"SORTBY":       {2, variadic},
	"STDEV":        {1, variadic},
	"STDEV.P":      {1, variadic},
	"STDEV.S":      {1, variadic},
	"SUBSTITUTE":   {3, 4},
	"SUBTOTAL":     {2, variadic},
	"SUM":          {1, variadic},
	"SUMIF":        {2, 3},
	"SUMIFS":       {3, variadic},
	"SUMPRODUCT":   {1, variadic},
	"SWITCH":       {3, variadic},
	"TEXT":         {2, 2},
	"TEXTAFTER":    {2, 6},
	"TEXTJOIN":     {3, variadic},
	"TODAY":        {0, 0},
	"TRIM":         {1, 1},
	"UNIQUE":       {1, 3},
	"UPPER":        {1, 1},
	"VALUE":        {1, 1},
	"VLOOKUP":      {3, 4},
	"WEEKDAY":      {1, 2},
	"XLOOKUP":      {3, 6},
	"XMATCH":       {2, 4},
	"YEAR":         {1, 1},
	"YEARFRAC":     {2, 3},
}

var errorLiterals = []string{"#DIV/0!", "#N/A", "#NAME?", "#NULL!", "#NUM!", "#REF!", "#SPILL!", "#VALUE!"}
