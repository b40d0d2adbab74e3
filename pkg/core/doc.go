// Package core defines the shared language of the DataLens system.
//
// This package contains:
//   - Domain entities (SchemaInfo, AnalysisPlanItem, InsightItem, ChartSpec)
//   - Pipeline progress and result types (Progress, AnalysisResult)
//   - Run history entities and the Store interface (Run, QueryRun)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
